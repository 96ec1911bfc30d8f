package postgres

import (
	"context"
	"time"

	"github.com/nstefanov/authcore/internal/model"
)

// AttemptRepo implements AttemptRepository using PostgreSQL.
type AttemptRepo struct{ db *DB }

// NewAttemptRepo constructs an attempt audit repository.
func NewAttemptRepo(db *DB) *AttemptRepo { return &AttemptRepo{db: db} }

// Record appends one attempt row.
func (r *AttemptRepo) Record(ctx context.Context, a *model.AuthAttempt) error {
	const q = `
INSERT INTO auth_attempts (id, identifier, action, success, ip, user_agent, user_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q,
		a.ID, a.Identifier, a.Action, a.Success, a.IP, a.UserAgent, a.UserID, a.CreatedAt)
	return err
}

// CountFailures counts failed attempts for (identifier, action) since the given time.
func (r *AttemptRepo) CountFailures(ctx context.Context, identifier, action string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*) FROM auth_attempts
WHERE identifier=$1 AND action=$2 AND NOT success AND created_at > $3`
	var n int
	err := r.db.Pool.QueryRow(ctx, q, identifier, action, since).Scan(&n)
	return n, err
}
