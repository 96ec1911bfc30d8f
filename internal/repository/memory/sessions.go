package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

// SessionStore is an in-memory SessionRepository keyed by token digest.
type SessionStore struct {
	mu   sync.RWMutex
	rows map[string]*model.Session // key: string(TokenHash)
}

// NewSessionStore constructs an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{rows: make(map[string]*model.Session)}
}

func (s *SessionStore) Create(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sess
	s.rows[string(sess.TokenHash)] = &c
	return nil
}

func (s *SessionStore) GetByTokenHash(_ context.Context, tokenHash []byte) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.rows[string(tokenHash)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (s *SessionStore) Update(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[string(sess.TokenHash)]; !ok {
		return errs.ErrNotFound
	}
	c := *sess
	s.rows[string(sess.TokenHash)] = &c
	return nil
}

func (s *SessionStore) Deactivate(_ context.Context, tokenHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.rows[string(tokenHash)]; ok {
		sess.Active = false
	}
	return nil
}

func (s *SessionStore) DeactivateByUser(_ context.Context, userID uuid.UUID, keepHash []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.rows {
		if sess.UserID != userID || !sess.Active {
			continue
		}
		if keepHash != nil && bytes.Equal(sess.TokenHash, keepHash) {
			continue
		}
		sess.Active = false
		n++
	}
	return n, nil
}

func (s *SessionStore) ActiveByUser(_ context.Context, userID uuid.UUID) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Session
	for _, sess := range s.rows {
		if sess.UserID == userID && sess.Active {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.rows {
		if now.After(sess.ExpiresAt) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}
