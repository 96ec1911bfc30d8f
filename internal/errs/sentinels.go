// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUserNotFound indicates a mutation was attempted on a missing user id.
	ErrUserNotFound = errors.New("User not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates optimistic concurrency failure (version mismatch).
	ErrConflict = errors.New("version conflict")

	// ErrRateLimited indicates the identifier is temporarily denied by rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionInvalid indicates the session token was rejected (unknown, expired or inactive).
	ErrSessionInvalid = errors.New("session invalid")
)

// Credential and account errors. Message texts are part of the external contract:
// handlers surface them verbatim.
var (
	// ErrInvalidCredentials covers both unknown-user and wrong-password cases.
	// Deliberately generic so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("Invalid credentials")

	// ErrEmailExists is returned when creating a user with a taken email.
	ErrEmailExists = errors.New("Email already exists")

	// ErrEmailInUse is returned when updating a user's email to one owned by another user.
	ErrEmailInUse = errors.New("Email already in use")

	// ErrInvalidEmail indicates the email failed format validation.
	ErrInvalidEmail = errors.New("Invalid email format")

	// ErrWeakPassword indicates the password failed the minimum-length policy.
	ErrWeakPassword = errors.New("Password must be at least 8 characters")

	// ErrWrongCurrentPassword is returned by the change-password flow when the
	// supplied current password does not verify.
	ErrWrongCurrentPassword = errors.New("Current password is incorrect")

	// ErrAlreadyVerified is returned when requesting verification for a verified email.
	ErrAlreadyVerified = errors.New("Email is already verified")

	// ErrOAuthNotConfigured is returned by OAuth paths when no provider is set up.
	ErrOAuthNotConfigured = errors.New("OAuth provider is not configured")
)
