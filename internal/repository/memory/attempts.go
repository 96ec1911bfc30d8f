package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nstefanov/authcore/internal/model"
)

// AttemptStore is an in-memory AttemptRepository.
type AttemptStore struct {
	mu   sync.Mutex
	rows []model.AuthAttempt
}

// NewAttemptStore constructs an empty attempt log.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{}
}

func (s *AttemptStore) Record(_ context.Context, a *model.AuthAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *a)
	return nil
}

func (s *AttemptStore) CountFailures(_ context.Context, identifier, action string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.rows {
		if a.Identifier == identifier && a.Action == action && !a.Success && a.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of recorded attempts, newest last.
func (s *AttemptStore) All() []model.AuthAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuthAttempt(nil), s.rows...)
}
