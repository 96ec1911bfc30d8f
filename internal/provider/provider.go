// Package provider defines the pluggable identity-provider capability:
// credential and profile operations behind one interface, with an in-memory
// and a database-backed implementation.
package provider

import (
	"context"
	"regexp"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/nstefanov/authcore/internal/model"
)

// Provider is the full identity capability. Expected failures (validation,
// conflict, not-found, bad credentials) are sentinel errors from errs with
// stable message texts; only infrastructure faults are wrapped errors.
// Lookups return (nil, nil) for not-found: absence is data.
type Provider interface {
	// CreateUser validates email format and password strength, enforces
	// email uniqueness and stores a hashed credential.
	CreateUser(ctx context.Context, email, password, name string) (*model.User, error)
	// AuthenticateUser verifies credentials by normalized email. Unknown
	// user and wrong password both yield errs.ErrInvalidCredentials.
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	// GetUserByID returns (nil, nil) when no such user exists.
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetUserByEmail returns (nil, nil) when no such user exists.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUser applies a partial update. Changing the email clears the
	// verification timestamp; a taken email yields errs.ErrEmailInUse.
	UpdateUser(ctx context.Context, id uuid.UUID, upd model.UserUpdate) (*model.User, error)
	// DeleteUser hard-removes the record.
	DeleteUser(ctx context.Context, id uuid.UUID) error
	// VerifyUserEmail stamps the verification time with now.
	VerifyUserEmail(ctx context.Context, id uuid.UUID) (*model.User, error)
	// ChangeUserPassword re-verifies currentPassword before accepting the
	// new one.
	ChangeUserPassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error
	// ResetUserPassword sets a new password without the current one; the
	// caller has already been authorized via a consumed one-time token.
	ResetUserPassword(ctx context.Context, id uuid.UUID, newPassword string) error
	// SignInWithOAuth delegates to an external OAuth provider. Unconfigured
	// providers yield errs.ErrOAuthNotConfigured.
	SignInWithOAuth(ctx context.Context, oauthProvider, redirectURL string) (string, error)
	// AvailableOAuthProviders lists configured OAuth provider names.
	AvailableOAuthProviders() []string
	// IsConfigured reports whether the provider has the infrastructure it needs.
	IsConfigured(ctx context.Context) bool
	// Configuration reports the identity-provider label and OAuth providers.
	Configuration() Configuration
}

// Configuration describes a provider to the surrounding application.
type Configuration struct {
	Label          string
	OAuthProviders []string
}

// MinPasswordLen is the documented password policy.
const MinPasswordLen = 8

var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the address passes format validation.
func ValidEmail(email string) bool {
	return emailRx.MatchString(email)
}
