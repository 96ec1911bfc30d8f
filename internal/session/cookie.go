package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nstefanov/authcore/internal/model"
)

// CookieConfig returns the attributes for the session cookie. HttpOnly is
// unconditional; Secure is dropped only in development and test so local
// plain-HTTP flows work; SameSite is Strict in production and Lax elsewhere.
func (m *Manager) CookieConfig() model.CookieOptions {
	opts := model.CookieOptions{
		Name:     m.cfg.CookieName,
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	}
	switch m.cfg.Environment {
	case EnvProduction:
		opts.SameSite = "Strict"
	case EnvDevelopment, EnvTest:
		opts.Secure = false
	}
	return opts
}

// CookieString renders a Set-Cookie value carrying the session token.
func (m *Manager) CookieString(token string, expires time.Time) string {
	opts := m.CookieConfig()
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s; Path=%s; Expires=%s", opts.Name, token, opts.Path, expires.UTC().Format(http.TimeFormat))
	if opts.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if opts.Secure {
		b.WriteString("; Secure")
	}
	fmt.Fprintf(&b, "; SameSite=%s", opts.SameSite)
	return b.String()
}

// ClearCookieString renders a Set-Cookie value with an expiry in the past so
// the client discards the session cookie.
func (m *Manager) ClearCookieString() string {
	return m.CookieString("", time.Unix(0, 0))
}
