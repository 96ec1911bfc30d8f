package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
)

// TokenStore is an in-memory TokenRepository. Consume holds the write lock for
// the whole check-and-mark, so a token can never validate twice.
type TokenStore struct {
	mu   sync.Mutex
	rows map[string]*model.OneTimeToken // key: string(TokenHash)
}

// NewTokenStore constructs an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{rows: make(map[string]*model.OneTimeToken)}
}

func (s *TokenStore) Create(_ context.Context, t *model.OneTimeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.rows[string(t.TokenHash)] = &c
	return nil
}

func (s *TokenStore) Consume(_ context.Context, tokenHash []byte, identifier string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[string(tokenHash)]
	if !ok || t.Identifier != identifier || t.Consumed || now.After(t.ExpiresAt) {
		return "", errs.ErrNotFound
	}
	t.Consumed = true
	return t.Purpose, nil
}

func (s *TokenStore) ByIdentifier(_ context.Context, identifier string) ([]model.OneTimeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OneTimeToken
	for _, t := range s.rows {
		if t.Identifier == identifier {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *TokenStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.rows {
		if now.After(t.ExpiresAt) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}
