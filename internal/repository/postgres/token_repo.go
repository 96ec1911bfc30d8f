package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a one-time-token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Create inserts a new token row.
func (r *TokenRepo) Create(ctx context.Context, t *model.OneTimeToken) error {
	const q = `
INSERT INTO one_time_tokens (id, token_hash, identifier, purpose, created_at, expires_at, consumed)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q,
		t.ID, t.TokenHash, t.Identifier, t.Purpose, t.CreatedAt, t.ExpiresAt, t.Consumed)
	return err
}

// Consume marks the token consumed and returns its purpose. Validity check and
// mark happen in a single conditional UPDATE, so concurrent calls can never
// both succeed for one token.
func (r *TokenRepo) Consume(ctx context.Context, tokenHash []byte, identifier string, now time.Time) (string, error) {
	const q = `
UPDATE one_time_tokens
SET consumed=true
WHERE token_hash=$1 AND identifier=$2 AND NOT consumed AND expires_at > $3
RETURNING purpose`
	var purpose string
	err := r.db.Pool.QueryRow(ctx, q, tokenHash, identifier, now).Scan(&purpose)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errs.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return purpose, nil
}

// ByIdentifier lists all tokens bound to the identifier, newest first.
func (r *TokenRepo) ByIdentifier(ctx context.Context, identifier string) ([]model.OneTimeToken, error) {
	const q = `
SELECT id, token_hash, identifier, purpose, created_at, expires_at, consumed
FROM one_time_tokens WHERE identifier=$1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, identifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OneTimeToken
	for rows.Next() {
		var t model.OneTimeToken
		if err := rows.Scan(&t.ID, &t.TokenHash, &t.Identifier, &t.Purpose,
			&t.CreatedAt, &t.ExpiresAt, &t.Consumed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteExpired removes rows past expiry regardless of consumed state.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	const q = `DELETE FROM one_time_tokens WHERE expires_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
