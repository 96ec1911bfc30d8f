package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/session"
)

type ctxKey int

const userKey ctxKey = iota

// userFrom returns the authenticated user placed by SessionAuth.
func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}

// Recover converts panics into 500 responses.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionAuth validates the session cookie and stores the user in the request
// context. Requests without a valid session get 401.
func SessionAuth(sessions *session.Manager) func(http.Handler) http.Handler {
	cookieName := sessions.CookieConfig().Name
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			check, err := sessions.Validate(r.Context(), c.Value, clientIP(r))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !check.Valid {
				w.Header().Set("Set-Cookie", sessions.ClearCookieString())
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, check.User)))
		})
	}
}
