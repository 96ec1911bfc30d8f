package repository

import (
	"context"
	"time"

	"github.com/nstefanov/authcore/internal/model"
)

// TokenRepository stores one-time tokens keyed by token digest.
type TokenRepository interface {
	// Create inserts a new token row.
	Create(ctx context.Context, t *model.OneTimeToken) error
	// Consume marks the token consumed and returns its purpose, in one atomic
	// step with the validity check: the row must match the digest and
	// identifier, be unconsumed, and not be expired at now. Returns
	// errs.ErrNotFound when no such row exists, which covers unknown, foreign,
	// already-consumed and expired tokens alike.
	Consume(ctx context.Context, tokenHash []byte, identifier string, now time.Time) (purpose string, err error)
	// ByIdentifier lists all tokens bound to the identifier.
	ByIdentifier(ctx context.Context, identifier string) ([]model.OneTimeToken, error)
	// DeleteExpired removes rows past expiry regardless of consumed state.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
