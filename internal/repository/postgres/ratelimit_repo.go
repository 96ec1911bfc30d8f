package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

// RateLimitRepo implements limiter.Store using PostgreSQL. Version-guarded
// updates give the engine its compare-and-swap guarantee across processes.
type RateLimitRepo struct{ db *DB }

// NewRateLimitRepo constructs a rate-limit store.
func NewRateLimitRepo(db *DB) *RateLimitRepo { return &RateLimitRepo{db: db} }

// Load returns the record for (identifier, action), or nil when absent.
func (r *RateLimitRepo) Load(ctx context.Context, identifier, action string) (*model.RateLimitRecord, error) {
	const q = `
SELECT count, window_start, attempts, tokens, last_refill, locked, locked_until, version
FROM rate_limits WHERE identifier=$1 AND action=$2`
	row := r.db.Pool.QueryRow(ctx, q, identifier, action)
	rec := model.RateLimitRecord{Identifier: identifier, Action: action}
	err := row.Scan(&rec.Count, &rec.WindowStart, &rec.Attempts, &rec.Tokens,
		&rec.LastRefill, &rec.Locked, &rec.LockedUntil, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save persists the record. Version 0 inserts; otherwise the update only
// lands when the stored version still matches, else errs.ErrConflict.
func (r *RateLimitRepo) Save(ctx context.Context, rec *model.RateLimitRecord) error {
	if rec.Version == 0 {
		const ins = `
INSERT INTO rate_limits (identifier, action, count, window_start, attempts, tokens, last_refill, locked, locked_until, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
ON CONFLICT (identifier, action) DO NOTHING`
		tag, err := r.db.Pool.Exec(ctx, ins, rec.Identifier, rec.Action, rec.Count,
			rec.WindowStart, rec.Attempts, rec.Tokens, rec.LastRefill, rec.Locked, rec.LockedUntil)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrConflict
		}
		rec.Version = 1
		return nil
	}

	const upd = `
UPDATE rate_limits
SET count=$3, window_start=$4, attempts=$5, tokens=$6, last_refill=$7, locked=$8, locked_until=$9, version=version+1
WHERE identifier=$1 AND action=$2 AND version=$10`
	tag, err := r.db.Pool.Exec(ctx, upd, rec.Identifier, rec.Action, rec.Count,
		rec.WindowStart, rec.Attempts, rec.Tokens, rec.LastRefill, rec.Locked, rec.LockedUntil, rec.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrConflict
	}
	rec.Version++
	return nil
}

// Delete removes the record; absent records are a no-op.
func (r *RateLimitRepo) Delete(ctx context.Context, identifier, action string) error {
	const q = `DELETE FROM rate_limits WHERE identifier=$1 AND action=$2`
	_, err := r.db.Pool.Exec(ctx, q, identifier, action)
	return err
}
