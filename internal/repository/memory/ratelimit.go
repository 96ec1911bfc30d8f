package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

// RateLimitStore is an in-memory limiter.Store. A single mutex covers the
// whole load/save cycle's version check, giving the compare-and-swap
// guarantee the engine relies on.
type RateLimitStore struct {
	mu   sync.Mutex
	rows map[string]*model.RateLimitRecord
}

// NewRateLimitStore constructs an empty rate-limit store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{rows: make(map[string]*model.RateLimitRecord)}
}

func rlKey(identifier, action string) string { return identifier + "\x00" + action }

func (s *RateLimitStore) Load(_ context.Context, identifier, action string) (*model.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[rlKey(identifier, action)]
	if !ok {
		return nil, nil
	}
	c := *rec
	c.Attempts = append([]time.Time(nil), rec.Attempts...)
	return &c, nil
}

func (s *RateLimitStore) Save(_ context.Context, rec *model.RateLimitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rlKey(rec.Identifier, rec.Action)
	cur, ok := s.rows[key]
	if ok {
		if cur.Version != rec.Version {
			return errs.ErrConflict
		}
	} else if rec.Version != 0 {
		return errs.ErrConflict
	}
	c := *rec
	c.Version++
	c.Attempts = append(c.Attempts[:0:0], rec.Attempts...)
	s.rows[key] = &c
	rec.Version = c.Version
	return nil
}

func (s *RateLimitStore) Delete(_ context.Context, identifier, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, rlKey(identifier, action))
	return nil
}
