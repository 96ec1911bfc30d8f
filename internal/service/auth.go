// Package service contains the auth façade composing the identity provider,
// session manager, token service and external collaborators into full
// user-facing workflows.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/notify"
	"github.com/nstefanov/authcore/internal/provider"
	"github.com/nstefanov/authcore/internal/session"
	"github.com/nstefanov/authcore/internal/token"
	"github.com/nstefanov/authcore/internal/uploads"
)

// ErrInvalidToken is returned when a one-time token fails verification.
var ErrInvalidToken = errors.New("Invalid or expired token")

// Config tunes the auth workflows.
type Config struct {
	// ResetURL and VerifyURL are the pages the emailed links point at; the
	// token and email ride as query parameters.
	ResetURL  string
	VerifyURL string
	// ResetTokenTTL defaults to 1h, VerifyTokenTTL to 24h.
	ResetTokenTTL  time.Duration
	VerifyTokenTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.ResetTokenTTL == 0 {
		c.ResetTokenTTL = time.Hour
	}
	if c.VerifyTokenTTL == 0 {
		c.VerifyTokenTTL = 24 * time.Hour
	}
	return c
}

// Auth is the workflow façade used by the transport layer. Rate limiting is
// deliberately not embedded here: the calling layer consults the limiter
// before invoking these methods and records the attempt afterwards.
type Auth struct {
	provider provider.Provider
	sessions *session.Manager
	tokens   *token.Service
	email    notify.EmailSender
	uploads  uploads.Store
	cfg      Config
	logger   *zap.Logger
}

// NewAuth constructs the auth façade.
func NewAuth(p provider.Provider, sessions *session.Manager, tokens *token.Service, email notify.EmailSender, up uploads.Store, cfg Config, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{
		provider: p,
		sessions: sessions,
		tokens:   tokens,
		email:    email,
		uploads:  up,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// SignUp creates the account and establishes a session. The welcome email is
// best-effort; a created account is never torn down over delivery failure.
func (a *Auth) SignUp(ctx context.Context, email, password, name, ip, userAgent string) (*model.User, model.NewSession, error) {
	u, err := a.provider.CreateUser(ctx, email, password, name)
	if err != nil {
		return nil, model.NewSession{}, err
	}
	sess, err := a.sessions.Create(ctx, u, ip, userAgent)
	if err != nil {
		return nil, model.NewSession{}, err
	}
	if a.email != nil {
		if err := a.email.SendWelcomeEmail(ctx, u.Email, u); err != nil {
			a.logger.Warn("welcome email failed", zap.String("email", u.Email), zap.Error(err))
		}
	}
	return u, sess, nil
}

// SignIn authenticates and establishes a session.
func (a *Auth) SignIn(ctx context.Context, email, password, ip, userAgent string) (*model.User, model.NewSession, error) {
	u, err := a.provider.AuthenticateUser(ctx, email, password)
	if err != nil {
		return nil, model.NewSession{}, err
	}
	sess, err := a.sessions.Create(ctx, u, ip, userAgent)
	if err != nil {
		return nil, model.NewSession{}, err
	}
	return u, sess, nil
}

// SignOut destroys the current session. Idempotent.
func (a *Auth) SignOut(ctx context.Context, sessionToken string) error {
	return a.sessions.Destroy(ctx, sessionToken)
}

// RequestPasswordReset issues a reset token and emails it. It reports success
// whether or not the email belongs to a user, so callers cannot probe for
// accounts; for unknown emails no token is created and nothing is sent.
func (a *Auth) RequestPasswordReset(ctx context.Context, email string) error {
	email = provider.NormalizeEmail(email)
	u, err := a.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		a.logger.Info("password reset requested for unknown email")
		return nil
	}

	issued, err := a.tokens.Create(ctx, email, model.PurposePasswordReset, a.cfg.ResetTokenTTL)
	if err != nil {
		return err
	}
	if a.email != nil {
		data := notify.ResetEmail{
			Token:    issued.Token,
			ResetURL: a.linkFor(a.cfg.ResetURL, email, issued.Token),
			User:     u,
		}
		if err := a.email.SendPasswordResetEmail(ctx, email, data); err != nil {
			a.logger.Warn("password reset email failed", zap.Error(err))
		}
	}
	return nil
}

// CompletePasswordReset consumes the token, sets the new password and
// invalidates every session of the user.
func (a *Auth) CompletePasswordReset(ctx context.Context, email, resetToken, newPassword string) error {
	email = provider.NormalizeEmail(email)
	check, err := a.tokens.Verify(ctx, resetToken, email)
	if err != nil {
		return err
	}
	if !check.Valid || check.Purpose != model.PurposePasswordReset {
		return ErrInvalidToken
	}

	u, err := a.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return errs.ErrUserNotFound
	}
	if err := a.provider.ResetUserPassword(ctx, u.ID, newPassword); err != nil {
		return err
	}
	if _, err := a.sessions.InvalidateUser(ctx, u.ID, "password_reset", ""); err != nil {
		return err
	}
	return nil
}

// RequestEmailVerification issues a verification token and emails it.
// Unlike password reset this flow is authenticated, so specific errors are
// fine: unknown users and already-verified emails are reported as such.
func (a *Auth) RequestEmailVerification(ctx context.Context, email string) error {
	email = provider.NormalizeEmail(email)
	u, err := a.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return errs.ErrUserNotFound
	}
	if u.EmailVerified != nil {
		return errs.ErrAlreadyVerified
	}

	issued, err := a.tokens.Create(ctx, email, model.PurposeEmailVerification, a.cfg.VerifyTokenTTL)
	if err != nil {
		return err
	}
	if a.email != nil {
		data := notify.VerificationEmail{
			Token:     issued.Token,
			VerifyURL: a.linkFor(a.cfg.VerifyURL, email, issued.Token),
			User:      u,
		}
		if err := a.email.SendVerificationEmail(ctx, email, data); err != nil {
			a.logger.Warn("verification email failed", zap.Error(err))
		}
	}
	return nil
}

// CompleteEmailVerification consumes the token and stamps the user verified.
func (a *Auth) CompleteEmailVerification(ctx context.Context, email, verifyToken string) (*model.User, error) {
	email = provider.NormalizeEmail(email)
	check, err := a.tokens.Verify(ctx, verifyToken, email)
	if err != nil {
		return nil, err
	}
	if !check.Valid || check.Purpose != model.PurposeEmailVerification {
		return nil, ErrInvalidToken
	}

	u, err := a.provider.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.ErrUserNotFound
	}
	return a.provider.VerifyUserEmail(ctx, u.ID)
}

// UpdateProfile applies a partial profile update. An email change relies on
// the provider clearing the verification timestamp.
func (a *Auth) UpdateProfile(ctx context.Context, userID uuid.UUID, upd model.UserUpdate) (*model.User, error) {
	return a.provider.UpdateUser(ctx, userID, upd)
}

// SetAvatar stores the image and points the profile at it.
func (a *Auth) SetAvatar(ctx context.Context, userID uuid.UUID, contentType string, data []byte) (*model.User, error) {
	ref, err := a.uploads.UploadAvatar(ctx, userID, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	return a.provider.UpdateUser(ctx, userID, model.UserUpdate{Image: &ref})
}

// DeleteAvatar removes the stored image and clears the profile reference.
func (a *Auth) DeleteAvatar(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	if err := a.uploads.DeleteAvatar(ctx, userID); err != nil {
		return nil, fmt.Errorf("delete avatar: %w", err)
	}
	empty := ""
	return a.provider.UpdateUser(ctx, userID, model.UserUpdate{Image: &empty})
}

// DeleteAccount removes the user and tears down their sessions. Session
// teardown runs even when the delete reports a failure, so a half-deleted
// account can never stay signed in.
func (a *Auth) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	delErr := a.provider.DeleteUser(ctx, userID)
	if _, err := a.sessions.InvalidateUser(ctx, userID, "account_deleted", ""); err != nil {
		a.logger.Error("session teardown after account deletion failed",
			zap.String("user_id", userID.String()), zap.Error(err))
		if delErr == nil {
			return err
		}
	}
	return delErr
}

// ChangePassword verifies the current password, sets the new one and
// invalidates all *other* sessions. The caller's session stays alive: they
// just proved knowledge of the password, forcing a re-login adds nothing.
func (a *Auth) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword, currentSessionToken string) error {
	if err := a.provider.ChangeUserPassword(ctx, userID, currentPassword, newPassword); err != nil {
		return err
	}
	if _, err := a.sessions.InvalidateUser(ctx, userID, "password_changed", currentSessionToken); err != nil {
		return err
	}
	return nil
}

// UserSessions lists the user's active sessions.
func (a *Auth) UserSessions(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	return a.sessions.UserSessions(ctx, userID)
}

// LogoutEverywhere destroys every active session of the user.
func (a *Auth) LogoutEverywhere(ctx context.Context, userID uuid.UUID) (int, error) {
	return a.sessions.InvalidateUser(ctx, userID, "logout_everywhere", "")
}

// ProviderConfiguration reports the identity backend to the caller.
func (a *Auth) ProviderConfiguration() provider.Configuration {
	return a.provider.Configuration()
}

func (a *Auth) linkFor(base, email, tok string) string {
	if base == "" {
		return ""
	}
	q := url.Values{"token": {tok}, "email": {email}}
	return base + "?" + q.Encode()
}
