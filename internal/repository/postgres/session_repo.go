package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionCols = `id, user_id, token_hash, created_at, last_activity, expires_at, ip, user_agent, active`

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `
INSERT INTO sessions (id, user_id, token_hash, created_at, last_activity, expires_at, ip, user_agent, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Pool.Exec(ctx, q,
		s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.LastActivity, s.ExpiresAt, s.IP, s.UserAgent, s.Active)
	return err
}

// GetByTokenHash selects a session by token digest.
func (r *SessionRepo) GetByTokenHash(ctx context.Context, tokenHash []byte) (*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions WHERE token_hash=$1`
	row := r.db.Pool.QueryRow(ctx, q, tokenHash)
	var s model.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.LastActivity,
		&s.ExpiresAt, &s.IP, &s.UserAgent, &s.Active)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

// Update persists last-activity, expiry and active flag.
func (r *SessionRepo) Update(ctx context.Context, s *model.Session) error {
	const q = `
UPDATE sessions SET last_activity=$2, expires_at=$3, active=$4 WHERE token_hash=$1`
	tag, err := r.db.Pool.Exec(ctx, q, s.TokenHash, s.LastActivity, s.ExpiresAt, s.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Deactivate flips the session inactive; unknown digests are a no-op.
func (r *SessionRepo) Deactivate(ctx context.Context, tokenHash []byte) error {
	const q = `UPDATE sessions SET active=false WHERE token_hash=$1`
	_, err := r.db.Pool.Exec(ctx, q, tokenHash)
	return err
}

// DeactivateByUser flips every active session of the user inactive except the
// one matching keepHash.
func (r *SessionRepo) DeactivateByUser(ctx context.Context, userID uuid.UUID, keepHash []byte) (int, error) {
	if keepHash == nil {
		const q = `UPDATE sessions SET active=false WHERE user_id=$1 AND active`
		tag, err := r.db.Pool.Exec(ctx, q, userID)
		if err != nil {
			return 0, err
		}
		return int(tag.RowsAffected()), nil
	}
	const q = `UPDATE sessions SET active=false WHERE user_id=$1 AND active AND token_hash <> $2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, keepHash)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ActiveByUser lists active sessions, oldest first.
func (r *SessionRepo) ActiveByUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions WHERE user_id=$1 AND active ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.LastActivity,
			&s.ExpiresAt, &s.IP, &s.UserAgent, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteExpired hard-removes rows past expiry.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	const q = `DELETE FROM sessions WHERE expires_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
