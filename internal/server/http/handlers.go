// Package http exposes the auth workflows over a chi router with
// cookie-based sessions.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/limiter"
	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/service"
	"github.com/nstefanov/authcore/internal/session"
)

// Rate-limited action types.
const (
	ActionLogin         = "login"
	ActionSignup        = "signup"
	ActionPasswordReset = "password_reset"
)

// maxAvatarBytes bounds avatar uploads.
const maxAvatarBytes = 5 << 20

// Handler carries the endpoint dependencies.
type Handler struct {
	auth     *service.Auth
	sessions *session.Manager
	limiter  *limiter.Limiter
	logger   *zap.Logger
}

// NewHandler constructs the endpoint handler.
func NewHandler(auth *service.Auth, sessions *session.Manager, lim *limiter.Limiter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{auth: auth, sessions: sessions, limiter: lim, logger: logger}
}

// Router assembles the chi router with middleware and all routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(Recover(h.logger))
	r.Use(RequestLogger(h.logger))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/password-reset/request", h.RequestPasswordReset)
		r.Post("/password-reset/complete", h.CompletePasswordReset)
		r.Post("/verify-email/request", h.RequestEmailVerification)
		r.Post("/verify-email/complete", h.CompleteEmailVerification)
		r.Get("/config", h.ProviderConfig)
	})

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(h.sessions))
		r.Post("/auth/change-password", h.ChangePassword)
		r.Get("/me", h.Me)
		r.Patch("/me", h.UpdateProfile)
		r.Delete("/me", h.DeleteAccount)
		r.Put("/me/avatar", h.SetAvatar)
		r.Delete("/me/avatar", h.DeleteAvatar)
		r.Get("/me/sessions", h.ListSessions)
		r.Post("/me/sessions/revoke-all", h.RevokeAllSessions)
	})

	return r
}

// allow consults the rate limiter before a protected action. The decision
// fails closed: a limiter infrastructure error denies with 503.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, identifier, action string) bool {
	res, err := h.limiter.Check(r.Context(), identifier, action, clientIP(r))
	if err != nil {
		h.logger.Error("rate limit check failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return false
	}
	if res.Allowed {
		return true
	}
	if res.Locked {
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(res.LockoutEndTime).Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "account temporarily locked")
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(res.ResetTime).Seconds())+1))
	writeError(w, http.StatusTooManyRequests, "too many attempts")
	return false
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, s model.NewSession) {
	w.Header().Set("Set-Cookie", h.sessions.CookieString(s.Token, s.ExpiresAt))
}

type userResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name,omitempty"`
	Image         string  `json:"image,omitempty"`
	EmailVerified *string `json:"emailVerified"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
		Image: u.Image,
	}
	if u.EmailVerified != nil {
		ts := u.EmailVerified.UTC().Format(time.RFC3339)
		resp.EmailVerified = &ts
	}
	return resp
}

// SignUp creates an account and signs the caller in.
// POST /auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if !h.allow(w, r, req.Email, ActionSignup) {
		return
	}

	u, sess, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.Name, clientIP(r), r.UserAgent())
	h.limiter.RecordAttempt(r.Context(), req.Email, ActionSignup, err == nil, clientIP(r), r.UserAgent(), nil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.setSessionCookie(w, sess)
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Login authenticates and establishes a session.
// POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if !h.allow(w, r, req.Email, ActionLogin) {
		return
	}

	u, sess, err := h.auth.SignIn(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		h.limiter.RecordAttempt(r.Context(), req.Email, ActionLogin, false, clientIP(r), r.UserAgent(), nil)
		h.writeServiceError(w, r, err)
		return
	}
	h.limiter.RecordAttempt(r.Context(), req.Email, ActionLogin, true, clientIP(r), r.UserAgent(), &u.ID)
	h.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Logout destroys the current session. Idempotent; succeeds without a cookie.
// POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.sessions.CookieConfig().Name); err == nil {
		if err := h.auth.SignOut(r.Context(), c.Value); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}
	w.Header().Set("Set-Cookie", h.sessions.ClearCookieString())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RequestPasswordReset starts the reset flow. Always reports success so the
// endpoint cannot be used to probe for accounts.
// POST /auth/password-reset/request
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if !h.allow(w, r, req.Email, ActionPasswordReset) {
		return
	}

	err := h.auth.RequestPasswordReset(r.Context(), req.Email)
	h.limiter.RecordAttempt(r.Context(), req.Email, ActionPasswordReset, err == nil, clientIP(r), r.UserAgent(), nil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CompletePasswordReset consumes the token and sets the new password.
// POST /auth/password-reset/complete
func (h *Handler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email, token and password are required")
		return
	}
	if err := h.auth.CompletePasswordReset(r.Context(), req.Email, req.Token, req.Password); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RequestEmailVerification issues a verification token.
// POST /auth/verify-email/request
func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := h.auth.RequestEmailVerification(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CompleteEmailVerification consumes the token and marks the email verified.
// POST /auth/verify-email/complete
func (h *Handler) CompleteEmailVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "email and token are required")
		return
	}
	u, err := h.auth.CompleteEmailVerification(r.Context(), req.Email, req.Token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ChangePassword verifies the current password, sets the new one and logs out
// the user's other devices.
// POST /auth/change-password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "currentPassword and newPassword are required")
		return
	}
	var current string
	if c, err := r.Cookie(h.sessions.CookieConfig().Name); err == nil {
		current = c.Value
	}
	if err := h.auth.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword, current); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me returns the authenticated user.
// GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(userFrom(r.Context())))
}

// UpdateProfile applies a partial profile update.
// PATCH /me
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	var req struct {
		Email *string `json:"email"`
		Name  *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.auth.UpdateProfile(r.Context(), u.ID, model.UserUpdate{Email: req.Email, Name: req.Name})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// SetAvatar stores an avatar image. Only image content types within the size
// bound are accepted; validation happens here, not in the core.
// PUT /me/avatar
func (h *Handler) SetAvatar(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		writeError(w, http.StatusBadRequest, "avatar must be an image")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAvatarBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "avatar too large")
		return
	}
	updated, err := h.auth.SetAvatar(r.Context(), u.ID, ct, data)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// DeleteAvatar removes the stored avatar.
// DELETE /me/avatar
func (h *Handler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	updated, err := h.auth.DeleteAvatar(r.Context(), u.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// DeleteAccount removes the account and tears down its sessions.
// DELETE /me
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	if err := h.auth.DeleteAccount(r.Context(), u.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Set-Cookie", h.sessions.ClearCookieString())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type sessionResponse struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"createdAt"`
	LastActivity string `json:"lastActivity"`
	ExpiresAt    string `json:"expiresAt"`
	IP           string `json:"ip"`
	UserAgent    string `json:"userAgent"`
}

// ListSessions lists the caller's active sessions.
// GET /me/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	sessions, err := h.auth.UserSessions(r.Context(), u.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:           s.ID.String(),
			CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
			LastActivity: s.LastActivity.UTC().Format(time.RFC3339),
			ExpiresAt:    s.ExpiresAt.UTC().Format(time.RFC3339),
			IP:           s.IP,
			UserAgent:    s.UserAgent,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RevokeAllSessions logs the user out everywhere, including this device.
// POST /me/sessions/revoke-all
func (h *Handler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	n, err := h.auth.LogoutEverywhere(r.Context(), u.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Set-Cookie", h.sessions.ClearCookieString())
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

// ProviderConfig reports the identity backend and OAuth providers.
// GET /auth/config
func (h *Handler) ProviderConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.auth.ProviderConfiguration()
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":       cfg.Label,
		"oauthProviders": cfg.OAuthProviders,
	})
}
