// Package limiter implements attempt rate limiting with interchangeable
// windowing algorithms and lockout semantics.
package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/repository"
)

// Algorithm selects the windowing strategy for an action type.
type Algorithm string

const (
	// FixedWindow resets the counter entirely at fixed boundaries.
	FixedWindow Algorithm = "fixed_window"
	// SlidingWindow discards attempts continuously as they age out.
	SlidingWindow Algorithm = "sliding_window"
	// TokenBucket refills consumable tokens at a steady rate.
	TokenBucket Algorithm = "token_bucket"
)

// Config tunes the limiter for one action type.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	// Lockout is how long the identifier stays hard-denied after exceeding
	// MaxAttempts within the window. Zero disables lockout: the caller is
	// denied only until the window rolls over.
	Lockout   time.Duration
	Algorithm Algorithm
	// Burst is the token-bucket capacity; defaults to MaxAttempts.
	Burst int
	// RefillRate is tokens added per Window; defaults to MaxAttempts.
	RefillRate float64
}

func (c Config) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	return c.MaxAttempts
}

func (c Config) refillRate() float64 {
	if c.RefillRate > 0 {
		return c.RefillRate
	}
	return float64(c.MaxAttempts)
}

// Store persists rate-limit records with optimistic concurrency. Save must
// reject a record whose Version does not match the stored one with
// errs.ErrConflict; a record with Version 0 is an insert.
type Store interface {
	// Load returns the record for (identifier, action), or nil when absent.
	Load(ctx context.Context, identifier, action string) (*model.RateLimitRecord, error)
	// Save persists the record, bumping its version.
	Save(ctx context.Context, rec *model.RateLimitRecord) error
	// Delete removes the record; absent records are a no-op.
	Delete(ctx context.Context, identifier, action string) error
}

// casRetries bounds the load-compute-save loop under contention. The decision
// fails closed when retries are exhausted.
const casRetries = 5

// Limiter decides whether attempts may proceed and records attempt audit rows.
// The decision path (Check) fails closed; the audit path (RecordAttempt) fails
// open and never propagates errors to the caller.
type Limiter struct {
	store    Store
	attempts repository.AttemptRepository
	configs  map[string]Config
	fallback Config
	logger   *zap.Logger
	now      func() time.Time
}

// New constructs a Limiter. attempts may be nil to disable auditing; configs
// maps action types to their tuning, fallback applies to unlisted actions.
func New(store Store, attempts repository.AttemptRepository, configs map[string]Config, fallback Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:    store,
		attempts: attempts,
		configs:  configs,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *Limiter) config(action string) Config {
	if c, ok := l.configs[action]; ok {
		return c
	}
	return l.fallback
}

// Check decides whether an attempt for (identifier, action) may proceed,
// consuming one slot of the window when it may. It must be called before the
// protected action; it does not write audit rows. Store failures deny.
func (l *Limiter) Check(ctx context.Context, identifier, action, ip string) (model.RateLimitResult, error) {
	cfg := l.config(action)
	now := l.now()

	for i := 0; i < casRetries; i++ {
		rec, err := l.store.Load(ctx, identifier, action)
		if err != nil {
			return model.RateLimitResult{}, err
		}
		if rec == nil {
			rec = &model.RateLimitRecord{Identifier: identifier, Action: action}
		}

		res, changed := step(cfg, rec, now)
		if !changed {
			return res, nil
		}
		if err := l.store.Save(ctx, rec); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				continue
			}
			return model.RateLimitResult{}, err
		}
		return res, nil
	}

	l.logger.Warn("rate limit check exhausted retries, denying",
		zap.String("identifier", identifier),
		zap.String("action", action),
		zap.String("ip", ip),
	)
	return model.RateLimitResult{Allowed: false, ResetTime: now.Add(cfg.Window)}, nil
}

// RecordAttempt appends an audit row for a completed attempt. Best-effort:
// failures are logged and swallowed so bookkeeping can never abort the
// caller's primary operation.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier, action string, success bool, ip, userAgent string, userID *uuid.UUID) {
	if l.attempts == nil {
		return
	}
	id, err := uuid.NewV4()
	if err != nil {
		l.logger.Warn("attempt audit skipped", zap.Error(err))
		return
	}
	a := &model.AuthAttempt{
		ID:         id,
		Identifier: identifier,
		Action:     action,
		Success:    success,
		IP:         ip,
		UserAgent:  userAgent,
		UserID:     userID,
		CreatedAt:  l.now(),
	}
	if err := l.attempts.Record(ctx, a); err != nil {
		l.logger.Warn("attempt audit failed",
			zap.String("identifier", identifier),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// Clear removes all counter state for (identifier, action). Administrative
// use; an active lockout is lifted immediately.
func (l *Limiter) Clear(ctx context.Context, identifier, action string) error {
	return l.store.Delete(ctx, identifier, action)
}
