// Package redisstore provides a Redis-backed limiter.Store for deployments
// that keep counter state out of the primary database.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

const keyPrefix = "ratelimit:"

// record is the JSON shape stored under the key. Version rides inside the
// payload; optimistic concurrency comes from WATCH on the key.
type record struct {
	Count       int         `json:"count"`
	WindowStart time.Time   `json:"window_start"`
	Attempts    []time.Time `json:"attempts,omitempty"`
	Tokens      float64     `json:"tokens"`
	LastRefill  time.Time   `json:"last_refill"`
	Locked      bool        `json:"locked"`
	LockedUntil time.Time   `json:"locked_until"`
	Version     int64       `json:"version"`
}

// Store implements limiter.Store on a Redis client.
type Store struct {
	client *redis.Client
	// ttl bounds how long an idle record survives; it is extended past an
	// active lockout so a lock cannot vanish early.
	ttl time.Duration
}

// New constructs a Store. ttl should comfortably exceed the longest
// configured window.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(identifier, action string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, identifier, action)
}

// Load returns the record for (identifier, action), or nil when absent.
func (s *Store) Load(ctx context.Context, identifier, action string) (*model.RateLimitRecord, error) {
	raw, err := s.client.Get(ctx, key(identifier, action)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &model.RateLimitRecord{
		Identifier:  identifier,
		Action:      action,
		Count:       r.Count,
		WindowStart: r.WindowStart,
		Attempts:    r.Attempts,
		Tokens:      r.Tokens,
		LastRefill:  r.LastRefill,
		Locked:      r.Locked,
		LockedUntil: r.LockedUntil,
		Version:     r.Version,
	}, nil
}

// Save persists the record under WATCH: if another writer touched the key
// between Load and Save, or the stored version moved on, errs.ErrConflict is
// returned and the engine retries.
func (s *Store) Save(ctx context.Context, rec *model.RateLimitRecord) error {
	k := key(rec.Identifier, rec.Action)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if rec.Version != 0 {
				return errs.ErrConflict
			}
		case err != nil:
			return err
		default:
			var cur record
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			if cur.Version != rec.Version {
				return errs.ErrConflict
			}
		}

		next := record{
			Count:       rec.Count,
			WindowStart: rec.WindowStart,
			Attempts:    rec.Attempts,
			Tokens:      rec.Tokens,
			LastRefill:  rec.LastRefill,
			Locked:      rec.Locked,
			LockedUntil: rec.LockedUntil,
			Version:     rec.Version + 1,
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}

		ttl := s.ttl
		if rec.Locked {
			if until := time.Until(rec.LockedUntil) + time.Minute; until > ttl {
				ttl = until
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, k)
	if errors.Is(err, redis.TxFailedErr) {
		return errs.ErrConflict
	}
	if err != nil {
		return err
	}
	rec.Version++
	return nil
}

// Delete removes the record; absent keys are a no-op.
func (s *Store) Delete(ctx context.Context, identifier, action string) error {
	return s.client.Del(ctx, key(identifier, action)).Err()
}
