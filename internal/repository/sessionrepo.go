package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nstefanov/authcore/internal/model"
)

// SessionRepository stores session rows keyed by the token digest.
type SessionRepository interface {
	// Create inserts a new session row.
	Create(ctx context.Context, s *model.Session) error
	// GetByTokenHash loads a session by token digest regardless of its active
	// flag; errs.ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash []byte) (*model.Session, error)
	// Update persists last-activity, expiry and active flag.
	Update(ctx context.Context, s *model.Session) error
	// Deactivate flips the session inactive. Unknown digests are a no-op,
	// keeping destroy idempotent.
	Deactivate(ctx context.Context, tokenHash []byte) error
	// DeactivateByUser flips every active session of the user inactive,
	// except the one matching keepHash (nil keeps none). Returns the number
	// of sessions deactivated.
	DeactivateByUser(ctx context.Context, userID uuid.UUID, keepHash []byte) (int, error)
	// ActiveByUser lists active sessions ordered by creation time, oldest first.
	ActiveByUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error)
	// DeleteExpired hard-removes rows whose expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
