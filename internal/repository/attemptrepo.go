package repository

import (
	"context"
	"time"

	"github.com/nstefanov/authcore/internal/model"
)

// AttemptRepository is the append-only audit log of rate-limited attempts.
// Writes are best-effort from the caller's point of view: the limiter logs
// and swallows failures rather than aborting the primary operation.
type AttemptRepository interface {
	// Record appends one attempt row.
	Record(ctx context.Context, a *model.AuthAttempt) error
	// CountFailures counts failed attempts for (identifier, action) since the
	// given time. Used by analytics and tests, not by the limit decision.
	CountFailures(ctx context.Context, identifier, action string, since time.Time) (int, error)
}
