// Package memory provides in-process store implementations. State is held in
// explicit instances so independent tests never interfere; every instance is
// safe for concurrent use.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

// UserStore is an in-memory UserRepository.
type UserStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*model.User
}

// NewUserStore constructs an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[uuid.UUID]*model.User)}
}

func (s *UserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byID {
		if strings.EqualFold(e.Email, u.Email) {
			return errs.ErrAlreadyExists
		}
	}
	c := *u
	s.byID[u.ID] = &c
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *UserStore) Update(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.ID]; !ok {
		return errs.ErrNotFound
	}
	for id, e := range s.byID {
		if id != u.ID && strings.EqualFold(e.Email, u.Email) {
			return errs.ErrAlreadyExists
		}
	}
	c := *u
	s.byID[u.ID] = &c
	return nil
}

func (s *UserStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
