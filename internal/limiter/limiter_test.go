package limiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/repository/memory"
)

func newTestLimiter(cfg Config) (*Limiter, *memory.AttemptStore) {
	attempts := memory.NewAttemptStore()
	l := New(memory.NewRateLimitStore(), attempts, map[string]Config{"login": cfg}, cfg, nil)
	return l, attempts
}

func TestFixedWindow_AllowsUpToMaxThenLocks(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, Window: time.Minute, Lockout: 10 * time.Minute, Algorithm: FixedWindow}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "a@x.com", "login", "1.2.3.4")
		if err != nil || !res.Allowed {
			t.Fatalf("attempt %d denied: %+v err=%v", i, res, err)
		}
		if res.Remaining != 3-i-1 {
			t.Fatalf("attempt %d remaining=%d, want %d", i, res.Remaining, 3-i-1)
		}
	}

	res, err := l.Check(ctx, "a@x.com", "login", "1.2.3.4")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed || !res.Locked {
		t.Fatalf("4th attempt should lock: %+v", res)
	}
	if !res.LockoutEndTime.After(time.Now()) {
		t.Fatalf("lockout end not in the future: %v", res.LockoutEndTime)
	}

	// Still locked on the next check; a different identifier is unaffected.
	res, _ = l.Check(ctx, "a@x.com", "login", "1.2.3.4")
	if res.Allowed || !res.Locked {
		t.Fatalf("still expected locked: %+v", res)
	}
	other, _ := l.Check(ctx, "b@x.com", "login", "1.2.3.4")
	if !other.Allowed {
		t.Fatalf("other identifier affected by lockout: %+v", other)
	}
}

func TestFixedWindow_ResetsAtBoundary(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 2, Window: time.Minute, Algorithm: FixedWindow}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		if res, _ := l.Check(ctx, "a@x.com", "login", ""); !res.Allowed {
			t.Fatalf("attempt %d denied", i)
		}
	}
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); res.Allowed {
		t.Fatalf("over-limit attempt allowed")
	}

	// Without lockout the window rolls over and the counter resets in bulk.
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	res, _ := l.Check(ctx, "a@x.com", "login", "")
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("window did not reset: %+v", res)
	}
}

func TestSlidingWindow_DiscardsOldAttemptsContinuously(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, Window: time.Minute, Algorithm: SlidingWindow}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	base := time.Now()
	at := func(d time.Duration) { l.now = func() time.Time { return base.Add(d) } }

	at(0)
	l.Check(ctx, "a@x.com", "login", "")
	at(20 * time.Second)
	l.Check(ctx, "a@x.com", "login", "")
	at(40 * time.Second)
	l.Check(ctx, "a@x.com", "login", "")

	at(45 * time.Second)
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); res.Allowed {
		t.Fatalf("4th attempt inside window allowed")
	}

	// 70s: only the 20s and 40s attempts remain in the trailing minute, plus
	// the denied attempt never counted, so one slot is free.
	at(70 * time.Second)
	res, _ := l.Check(ctx, "a@x.com", "login", "")
	if !res.Allowed {
		t.Fatalf("slot freed by aged-out attempt still denied: %+v", res)
	}
}

func TestSlidingWindow_LockoutOnExceed(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 2, Window: time.Minute, Lockout: 5 * time.Minute, Algorithm: SlidingWindow}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	l.Check(ctx, "a@x.com", "login", "")
	l.Check(ctx, "a@x.com", "login", "")
	res, _ := l.Check(ctx, "a@x.com", "login", "")
	if res.Allowed || !res.Locked {
		t.Fatalf("want lockout: %+v", res)
	}

	// Lockout outlives the sliding window itself.
	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); res.Allowed || !res.Locked {
		t.Fatalf("lockout lifted early: %+v", res)
	}

	// After lockout end, attempts flow again.
	l.now = func() time.Time { return base.Add(6 * time.Minute) }
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); !res.Allowed {
		t.Fatalf("lockout not lifted: %+v", res)
	}
}

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, Window: time.Minute, Algorithm: TokenBucket, Burst: 3, RefillRate: 3}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if res, _ := l.Check(ctx, "a@x.com", "login", ""); !res.Allowed {
			t.Fatalf("burst attempt %d denied", i)
		}
	}
	res, _ := l.Check(ctx, "a@x.com", "login", "")
	if res.Allowed {
		t.Fatalf("empty bucket allowed an attempt")
	}
	if res.Locked {
		t.Fatalf("token bucket should not lock: %+v", res)
	}
	if !res.ResetTime.After(base) {
		t.Fatalf("reset time not in the future: %v", res.ResetTime)
	}

	// 3 tokens per minute: after 25s one token has dripped back.
	l.now = func() time.Time { return base.Add(25 * time.Second) }
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); !res.Allowed {
		t.Fatalf("refilled token denied: %+v", res)
	}
	// And it was consumed again.
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); res.Allowed {
		t.Fatalf("second attempt after single refill allowed")
	}
}

func TestCheck_ConcurrentNeverExceedsMax(t *testing.T) {
	t.Parallel()
	for _, alg := range []Algorithm{FixedWindow, SlidingWindow} {
		alg := alg
		t.Run(string(alg), func(t *testing.T) {
			t.Parallel()
			cfg := Config{MaxAttempts: 5, Window: time.Minute, Lockout: time.Minute, Algorithm: alg}
			l, _ := newTestLimiter(cfg)
			ctx := context.Background()

			const callers = 40
			var wg sync.WaitGroup
			allowed := make(chan bool, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := l.Check(ctx, "a@x.com", "login", "")
					allowed <- err == nil && res.Allowed
				}()
			}
			wg.Wait()
			close(allowed)

			n := 0
			for ok := range allowed {
				if ok {
					n++
				}
			}
			if n > 5 {
				t.Fatalf("%d attempts admitted, max is 5", n)
			}
		})
	}
}

func TestClear_LiftsLockout(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 1, Window: time.Hour, Lockout: time.Hour, Algorithm: FixedWindow}
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	l.Check(ctx, "a@x.com", "login", "")
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); res.Allowed {
		t.Fatalf("expected lockout")
	}
	if err := l.Clear(ctx, "a@x.com", "login"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if res, _ := l.Check(ctx, "a@x.com", "login", ""); !res.Allowed {
		t.Fatalf("cleared identifier still denied: %+v", res)
	}
}

func TestRecordAttempt_Audit(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 5, Window: time.Minute, Algorithm: FixedWindow}
	l, attempts := newTestLimiter(cfg)
	ctx := context.Background()

	l.RecordAttempt(ctx, "a@x.com", "login", false, "1.2.3.4", "UA", nil)
	l.RecordAttempt(ctx, "a@x.com", "login", true, "1.2.3.4", "UA", nil)

	all := attempts.All()
	if len(all) != 2 {
		t.Fatalf("want 2 audit rows, got %d", len(all))
	}
	if all[0].Success || !all[1].Success {
		t.Fatalf("audit outcomes wrong: %+v", all)
	}

	n, err := attempts.CountFailures(ctx, "a@x.com", "login", time.Now().Add(-time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("CountFailures=%d err=%v, want 1", n, err)
	}
}

type failingAttempts struct{}

func (failingAttempts) Record(context.Context, *model.AuthAttempt) error {
	return errors.New("audit store down")
}
func (failingAttempts) CountFailures(context.Context, string, string, time.Time) (int, error) {
	return 0, errors.New("audit store down")
}

func TestRecordAttempt_FailureIsSwallowed(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 5, Window: time.Minute, Algorithm: FixedWindow}
	l := New(memory.NewRateLimitStore(), failingAttempts{}, nil, cfg, nil)
	ctx := context.Background()

	// Must not panic or propagate anything.
	l.RecordAttempt(ctx, "a@x.com", "login", false, "", "", nil)

	// And the decision path is unaffected.
	res, err := l.Check(ctx, "a@x.com", "login", "")
	if err != nil || !res.Allowed {
		t.Fatalf("decision affected by audit failure: %+v err=%v", res, err)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context, string, string) (*model.RateLimitRecord, error) {
	return nil, errors.New("store down")
}
func (failingStore) Save(context.Context, *model.RateLimitRecord) error {
	return errors.New("store down")
}
func (failingStore) Delete(context.Context, string, string) error {
	return errors.New("store down")
}

func TestCheck_StoreFailure_FailsClosed(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 5, Window: time.Minute, Algorithm: FixedWindow}
	l := New(failingStore{}, nil, nil, cfg, nil)

	res, err := l.Check(context.Background(), "a@x.com", "login", "")
	if err == nil {
		t.Fatalf("want store error to surface")
	}
	if res.Allowed {
		t.Fatalf("store failure admitted an attempt")
	}
}
