// Package postgres implements the identity provider over the persisted user
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/nstefanov/authcore/internal/crypto"
	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/provider"
	"github.com/nstefanov/authcore/internal/repository"
)

// Provider is the database-backed identity provider.
type Provider struct {
	users repository.UserRepository
	now   func() time.Time
}

var _ provider.Provider = (*Provider)(nil)

// New constructs a provider over a user repository.
func New(users repository.UserRepository) *Provider {
	return &Provider{users: users, now: time.Now}
}

func (p *Provider) CreateUser(ctx context.Context, email, password, name string) (*model.User, error) {
	email = provider.NormalizeEmail(email)
	if !provider.ValidEmail(email) {
		return nil, errs.ErrInvalidEmail
	}
	if len(password) < provider.MinPasswordLen {
		return nil, errs.ErrWeakPassword
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return nil, err
	}
	now := p.now()
	u := &model.User{
		ID:        id,
		Email:     email,
		Name:      name,
		PwdHash:   crypto.HashPassword([]byte(password), salt),
		Salt:      salt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, errs.ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u.Redacted(), nil
}

func (p *Provider) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := p.users.GetByEmail(ctx, provider.NormalizeEmail(email))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !crypto.VerifyPassword([]byte(password), u.Salt, u.PwdHash) {
		return nil, errs.ErrInvalidCredentials
	}
	return u.Redacted(), nil
}

func (p *Provider) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := p.users.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u.Redacted(), nil
}

func (p *Provider) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := p.users.GetByEmail(ctx, provider.NormalizeEmail(email))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u.Redacted(), nil
}

func (p *Provider) UpdateUser(ctx context.Context, id uuid.UUID, upd model.UserUpdate) (*model.User, error) {
	u, err := p.users.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if upd.Email != nil {
		email := provider.NormalizeEmail(*upd.Email)
		if !provider.ValidEmail(email) {
			return nil, errs.ErrInvalidEmail
		}
		if email != u.Email {
			u.Email = email
			u.EmailVerified = nil
		}
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Image != nil {
		u.Image = *upd.Image
	}
	u.UpdatedAt = p.now()

	if err := p.users.Update(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, errs.ErrEmailInUse
		}
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u.Redacted(), nil
}

func (p *Provider) DeleteUser(ctx context.Context, id uuid.UUID) error {
	err := p.users.Delete(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (p *Provider) VerifyUserEmail(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := p.users.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	now := p.now()
	u.EmailVerified = &now
	u.UpdatedAt = now
	if err := p.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("verify email: %w", err)
	}
	return u.Redacted(), nil
}

func (p *Provider) ChangeUserPassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	u, err := p.users.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if !crypto.VerifyPassword([]byte(currentPassword), u.Salt, u.PwdHash) {
		return errs.ErrWrongCurrentPassword
	}
	if len(newPassword) < provider.MinPasswordLen {
		return errs.ErrWeakPassword
	}
	return p.setPassword(ctx, u, newPassword)
}

func (p *Provider) ResetUserPassword(ctx context.Context, id uuid.UUID, newPassword string) error {
	u, err := p.users.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if len(newPassword) < provider.MinPasswordLen {
		return errs.ErrWeakPassword
	}
	return p.setPassword(ctx, u, newPassword)
}

func (p *Provider) setPassword(ctx context.Context, u *model.User, password string) error {
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return err
	}
	u.Salt = salt
	u.PwdHash = crypto.HashPassword([]byte(password), salt)
	u.UpdatedAt = p.now()
	if err := p.users.Update(ctx, u); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

func (p *Provider) SignInWithOAuth(context.Context, string, string) (string, error) {
	return "", errs.ErrOAuthNotConfigured
}

func (p *Provider) AvailableOAuthProviders() []string { return nil }

// IsConfigured reports whether the backing repository is wired.
func (p *Provider) IsConfigured(context.Context) bool { return p.users != nil }

func (p *Provider) Configuration() provider.Configuration {
	return provider.Configuration{Label: "database"}
}
