package limiter

import (
	"time"

	"github.com/nstefanov/authcore/internal/model"
)

// step applies one attempt to the record under the given config and reports
// the decision. changed tells the engine whether the record must be saved;
// an already-locked identifier is decided without a write.
func step(cfg Config, rec *model.RateLimitRecord, now time.Time) (res model.RateLimitResult, changed bool) {
	if rec.Locked {
		if now.Before(rec.LockedUntil) {
			return model.RateLimitResult{
				Allowed:        false,
				Locked:         true,
				LockoutEndTime: rec.LockedUntil,
			}, false
		}
		// Lockout elapsed: start fresh.
		rec.Locked = false
		rec.LockedUntil = time.Time{}
		rec.Count = 0
		rec.Attempts = nil
		rec.WindowStart = time.Time{}
	}

	switch cfg.Algorithm {
	case SlidingWindow:
		return stepSliding(cfg, rec, now)
	case TokenBucket:
		return stepBucket(cfg, rec, now)
	default:
		return stepFixed(cfg, rec, now)
	}
}

func stepFixed(cfg Config, rec *model.RateLimitRecord, now time.Time) (model.RateLimitResult, bool) {
	if rec.WindowStart.IsZero() || !now.Before(rec.WindowStart.Add(cfg.Window)) {
		rec.WindowStart = now
		rec.Count = 0
	}
	reset := rec.WindowStart.Add(cfg.Window)

	if rec.Count >= cfg.MaxAttempts {
		return deny(cfg, rec, now, reset)
	}
	rec.Count++
	return model.RateLimitResult{
		Allowed:   true,
		Remaining: cfg.MaxAttempts - rec.Count,
		ResetTime: reset,
	}, true
}

func stepSliding(cfg Config, rec *model.RateLimitRecord, now time.Time) (model.RateLimitResult, bool) {
	cutoff := now.Add(-cfg.Window)
	kept := rec.Attempts[:0]
	for _, at := range rec.Attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	pruned := len(kept) != len(rec.Attempts)
	rec.Attempts = kept
	rec.Count = len(kept)

	// The window resets once the oldest counted attempt ages out.
	reset := now.Add(cfg.Window)
	if len(kept) > 0 {
		reset = kept[0].Add(cfg.Window)
	}

	if rec.Count >= cfg.MaxAttempts {
		res, _ := deny(cfg, rec, now, reset)
		return res, pruned || rec.Locked
	}
	rec.Attempts = append(rec.Attempts, now)
	rec.Count = len(rec.Attempts)
	return model.RateLimitResult{
		Allowed:   true,
		Remaining: cfg.MaxAttempts - rec.Count,
		ResetTime: reset,
	}, true
}

func stepBucket(cfg Config, rec *model.RateLimitRecord, now time.Time) (model.RateLimitResult, bool) {
	burst := float64(cfg.burst())
	rate := cfg.refillRate() // tokens per cfg.Window

	if rec.LastRefill.IsZero() {
		rec.Tokens = burst
	} else if elapsed := now.Sub(rec.LastRefill); elapsed > 0 {
		rec.Tokens += elapsed.Seconds() / cfg.Window.Seconds() * rate
		if rec.Tokens > burst {
			rec.Tokens = burst
		}
	}
	rec.LastRefill = now

	if rec.Tokens < 1 {
		// Blocked until one whole token has dripped back in.
		wait := time.Duration((1 - rec.Tokens) / rate * float64(cfg.Window))
		return model.RateLimitResult{
			Allowed:   false,
			ResetTime: now.Add(wait),
		}, true
	}
	rec.Tokens--
	rec.Count++
	return model.RateLimitResult{
		Allowed:   true,
		Remaining: int(rec.Tokens),
		ResetTime: now.Add(time.Duration(1 / rate * float64(cfg.Window))),
	}, true
}

// deny handles a window-exhausted attempt: with a lockout configured the
// identifier transitions to locked, otherwise it waits out the window.
func deny(cfg Config, rec *model.RateLimitRecord, now, reset time.Time) (model.RateLimitResult, bool) {
	if cfg.Lockout > 0 {
		rec.Locked = true
		rec.LockedUntil = now.Add(cfg.Lockout)
		return model.RateLimitResult{
			Allowed:        false,
			Locked:         true,
			LockoutEndTime: rec.LockedUntil,
		}, true
	}
	return model.RateLimitResult{
		Allowed:   false,
		ResetTime: reset,
	}, false
}
