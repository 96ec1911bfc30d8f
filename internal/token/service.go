// Package token issues and consumes single-use, expiring tokens bound to an
// identifier and a purpose tag.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/crypto"
	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/repository"
)

// Service is the one-time-token service.
type Service struct {
	tokens repository.TokenRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService constructs a token service.
func NewService(tokens repository.TokenRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tokens: tokens, logger: logger, now: time.Now}
}

// Create issues a new token bound to identifier and purpose. A zero or
// negative ttl stores an already-expired row; that is not an error.
func (s *Service) Create(ctx context.Context, identifier, purpose string, ttl time.Duration) (model.IssuedToken, error) {
	raw, err := crypto.NewToken()
	if err != nil {
		return model.IssuedToken{}, fmt.Errorf("generate token: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.IssuedToken{}, err
	}
	now := s.now()
	t := &model.OneTimeToken{
		ID:         id,
		TokenHash:  crypto.TokenDigest(raw),
		Identifier: identifier,
		Purpose:    purpose,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return model.IssuedToken{}, fmt.Errorf("store token: %w", err)
	}
	return model.IssuedToken{Token: raw, Purpose: purpose, ExpiresAt: t.ExpiresAt}, nil
}

// Verify consumes the token for the identifier it was issued to. Unknown,
// foreign, consumed and expired tokens all yield Valid=false without error;
// consumption is atomic with the check, so a token validates at most once.
func (s *Service) Verify(ctx context.Context, token, identifier string) (model.TokenCheck, error) {
	purpose, err := s.tokens.Consume(ctx, crypto.TokenDigest(token), identifier, s.now())
	if errors.Is(err, errs.ErrNotFound) {
		return model.TokenCheck{Valid: false}, nil
	}
	if err != nil {
		return model.TokenCheck{}, fmt.Errorf("consume token: %w", err)
	}
	return model.TokenCheck{Valid: true, Purpose: purpose}, nil
}

// CleanupExpired removes tokens past expiry regardless of consumed state.
// Idempotent; safe to run on an interval alongside live traffic.
func (s *Service) CleanupExpired(ctx context.Context) error {
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return fmt.Errorf("cleanup tokens: %w", err)
	}
	if n > 0 {
		s.logger.Debug("expired tokens removed", zap.Int("count", n))
	}
	return nil
}

// ForIdentifier lists all tokens bound to the identifier.
func (s *Service) ForIdentifier(ctx context.Context, identifier string) ([]model.OneTimeToken, error) {
	return s.tokens.ByIdentifier(ctx, identifier)
}
