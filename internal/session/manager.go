// Package session owns the authenticated session lifecycle: creation with a
// concurrent-session cap, validation with sliding refresh, destruction and
// bulk invalidation.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/crypto"
	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/repository"
)

// Environment labels tune cookie attributes.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Config tunes the session manager.
type Config struct {
	CookieName string
	// MaxAge is the session lifetime granted at creation and, with sliding
	// expiry, re-granted on each validation.
	MaxAge time.Duration
	// InactivityTimeout rejects and destroys sessions idle longer than this.
	InactivityTimeout time.Duration
	// MaxConcurrent caps simultaneously active sessions per user; creating
	// one more deactivates the oldest.
	MaxConcurrent int
	// SlidingExpiry extends the deadline by MaxAge from each validation.
	SlidingExpiry bool
	// MaxLifetimeFactor caps total sliding extension: a session never lives
	// past CreatedAt + MaxLifetimeFactor×MaxAge without reauthentication.
	MaxLifetimeFactor int
	// BindIP rejects validations whose client IP differs from the IP
	// captured at creation. Off by default: IP drift behind NATs and
	// proxies is common, so binding is opt-in rather than hard-coded.
	BindIP      bool
	Environment string
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = "session_token"
	}
	if c.MaxAge == 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = 2 * time.Hour
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 5
	}
	if c.MaxLifetimeFactor == 0 {
		c.MaxLifetimeFactor = 7
	}
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	return c
}

// Manager implements the session lifecycle over a SessionRepository.
type Manager struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager constructs a session manager.
func NewManager(sessions repository.SessionRepository, users repository.UserRepository, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: sessions,
		users:    users,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Create starts a session for the user. When the user already holds the
// maximum number of active sessions, the oldest one (by creation time) is
// deactivated first. The raw token is returned here and never again.
func (m *Manager) Create(ctx context.Context, user *model.User, ip, userAgent string) (model.NewSession, error) {
	active, err := m.sessions.ActiveByUser(ctx, user.ID)
	if err != nil {
		return model.NewSession{}, fmt.Errorf("list sessions: %w", err)
	}
	for len(active) >= m.cfg.MaxConcurrent {
		oldest := active[0]
		if err := m.sessions.Deactivate(ctx, oldest.TokenHash); err != nil {
			return model.NewSession{}, fmt.Errorf("evict session: %w", err)
		}
		m.logger.Info("session cap reached, oldest evicted",
			zap.String("user_id", user.ID.String()),
			zap.Time("evicted_created_at", oldest.CreatedAt),
		)
		active = active[1:]
	}

	raw, err := crypto.NewToken()
	if err != nil {
		return model.NewSession{}, fmt.Errorf("generate session token: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.NewSession{}, err
	}
	now := m.now()
	s := &model.Session{
		ID:           id,
		UserID:       user.ID,
		TokenHash:    crypto.TokenDigest(raw),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.cfg.MaxAge),
		IP:           ip,
		UserAgent:    userAgent,
		Active:       true,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return model.NewSession{}, fmt.Errorf("store session: %w", err)
	}
	return model.NewSession{Token: raw, ExpiresAt: s.ExpiresAt, Cookie: m.CookieConfig()}, nil
}

// Validate checks a session token and refreshes the session when it passes.
// Rejections are data (Valid=false), not errors; only storage failures return
// a non-nil error.
func (m *Manager) Validate(ctx context.Context, token, ip string) (model.SessionCheck, error) {
	rejected := model.SessionCheck{Valid: false, Action: model.SessionRejected}

	s, err := m.sessions.GetByTokenHash(ctx, crypto.TokenDigest(token))
	if errors.Is(err, errs.ErrNotFound) {
		return rejected, nil
	}
	if err != nil {
		return model.SessionCheck{}, fmt.Errorf("load session: %w", err)
	}
	if !s.Active {
		return rejected, nil
	}

	now := m.now()
	if now.After(s.ExpiresAt) {
		_ = m.sessions.Deactivate(ctx, s.TokenHash)
		return rejected, nil
	}
	if now.Sub(s.LastActivity) > m.cfg.InactivityTimeout {
		_ = m.sessions.Deactivate(ctx, s.TokenHash)
		return rejected, nil
	}
	if m.cfg.BindIP && ip != "" && s.IP != "" && ip != s.IP {
		m.logger.Warn("session rejected on client IP mismatch",
			zap.String("session_id", s.ID.String()),
			zap.String("bound_ip", s.IP),
			zap.String("seen_ip", ip),
		)
		return rejected, nil
	}

	action := model.SessionRefreshed
	s.LastActivity = now
	if m.cfg.SlidingExpiry {
		hardCap := s.CreatedAt.Add(time.Duration(m.cfg.MaxLifetimeFactor) * m.cfg.MaxAge)
		next := now.Add(m.cfg.MaxAge)
		if next.After(hardCap) {
			next = hardCap
		}
		s.ExpiresAt = next
		if s.ExpiresAt.Sub(now) < m.cfg.MaxAge/10 {
			action = model.SessionExpiringSoon
		}
	}
	if err := m.sessions.Update(ctx, s); err != nil {
		return model.SessionCheck{}, fmt.Errorf("refresh session: %w", err)
	}

	u, err := m.users.GetByID(ctx, s.UserID)
	if errors.Is(err, errs.ErrNotFound) {
		// Owner is gone; the session must die with the account.
		_ = m.sessions.Deactivate(ctx, s.TokenHash)
		return rejected, nil
	}
	if err != nil {
		return model.SessionCheck{}, fmt.Errorf("load session user: %w", err)
	}
	return model.SessionCheck{Valid: true, User: u.Redacted(), Action: action}, nil
}

// Destroy deactivates the session for the token. Idempotent: unknown and
// already-destroyed tokens are not errors.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.sessions.Deactivate(ctx, crypto.TokenDigest(token))
}

// InvalidateUser deactivates every active session of the user. keepToken, when
// non-empty, exempts the caller's own session (the change-password path).
// Returns the number of sessions invalidated.
func (m *Manager) InvalidateUser(ctx context.Context, userID uuid.UUID, reason, keepToken string) (int, error) {
	var keep []byte
	if keepToken != "" {
		keep = crypto.TokenDigest(keepToken)
	}
	n, err := m.sessions.DeactivateByUser(ctx, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("invalidate sessions: %w", err)
	}
	if n > 0 {
		m.logger.Info("user sessions invalidated",
			zap.String("user_id", userID.String()),
			zap.String("reason", reason),
			zap.Int("count", n),
		)
	}
	return n, nil
}

// UserSessions lists the user's active sessions for management UIs.
func (m *Manager) UserSessions(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	return m.sessions.ActiveByUser(ctx, userID)
}

// CleanupExpired garbage-collects rows past expiry. Idempotent; safe on an
// interval concurrent with live traffic.
func (m *Manager) CleanupExpired(ctx context.Context) error {
	n, err := m.sessions.DeleteExpired(ctx, m.now())
	if err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	if n > 0 {
		m.logger.Debug("expired sessions removed", zap.Int("count", n))
	}
	return nil
}
