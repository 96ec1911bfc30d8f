// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User represents an account. The password hash and salt never leave the
// provider layer; Redacted copies cross the service boundary.
type User struct {
	ID            uuid.UUID  // PK
	Email         string     // unique, lowercase-normalized
	Name          string     // display name, may be empty
	Image         string     // profile image reference, may be empty
	EmailVerified *time.Time // nil means unverified
	PwdHash       []byte     // Argon2id(password, Salt)
	Salt          []byte     // per-user auth salt
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Redacted returns a copy safe to hand outside the provider layer.
func (u *User) Redacted() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PwdHash = nil
	c.Salt = nil
	return &c
}

// UserUpdate is a partial profile update. Nil fields are left unchanged.
type UserUpdate struct {
	Email *string
	Name  *string
	Image *string
}

// Session binds one authenticated device/browser to a user. Only a digest of
// the opaque token is stored; the raw token is returned exactly once at creation.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	TokenHash    []byte // sha256 of the opaque token
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	IP           string
	UserAgent    string
	Active       bool
}

// NewSession is the creation result: the raw token appears here and nowhere else.
type NewSession struct {
	Token     string
	ExpiresAt time.Time
	Cookie    CookieOptions
}

// SessionAction tells the caller what Validate did with the session.
type SessionAction string

const (
	// SessionRefreshed means the session passed all checks and its activity
	// (and, with sliding expiry, its deadline) was advanced.
	SessionRefreshed SessionAction = "refreshed"
	// SessionExpiringSoon means the session is valid but close to its hard
	// lifetime cap and cannot be extended further.
	SessionExpiringSoon SessionAction = "expiring_soon"
	// SessionRejected means the token is unknown, inactive, expired or idle.
	SessionRejected SessionAction = "rejected"
)

// SessionCheck is the result of validating a session token.
type SessionCheck struct {
	Valid  bool
	User   *User
	Action SessionAction
}

// CookieOptions describe the session cookie; the transport layer renders them.
type CookieOptions struct {
	Name     string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite string // "Strict" or "Lax"
}

// OneTimeToken is a purpose-tagged, identifier-scoped, expiring, single-use secret.
type OneTimeToken struct {
	ID         uuid.UUID
	TokenHash  []byte // sha256 of the opaque token
	Identifier string // e.g. an email address
	Purpose    string // e.g. "password_reset"
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Consumed   bool
}

// Token purposes used by the auth workflows.
const (
	PurposePasswordReset     = "password_reset"
	PurposeEmailVerification = "email_verification"
)

// IssuedToken is the creation result of a one-time token.
type IssuedToken struct {
	Token     string
	Purpose   string
	ExpiresAt time.Time
}

// TokenCheck is the result of a verify-and-consume attempt.
type TokenCheck struct {
	Valid   bool
	Purpose string
}

// RateLimitRecord is the per (identifier, action) counter state.
type RateLimitRecord struct {
	Identifier  string
	Action      string
	Count       int
	WindowStart time.Time
	// Attempts holds individual attempt times; used by the sliding-window
	// algorithm only, empty otherwise.
	Attempts []time.Time
	// Tokens and LastRefill carry token-bucket state; unused otherwise.
	Tokens     float64
	LastRefill time.Time
	Locked     bool
	LockedUntil time.Time
	// Version guards compare-and-swap saves.
	Version int64
}

// RateLimitResult is the decision returned by Check.
type RateLimitResult struct {
	Allowed        bool
	Locked         bool
	Remaining      int
	ResetTime      time.Time
	LockoutEndTime time.Time
}

// AuthAttempt is an append-only audit row, recorded best-effort after the
// protected action. It never influences the rate-limit decision.
type AuthAttempt struct {
	ID         uuid.UUID
	Identifier string
	Action     string
	Success    bool
	IP         string
	UserAgent  string
	UserID     *uuid.UUID
	CreatedAt  time.Time
}
