// Package memory implements the identity provider on in-process state, for
// tests and local development. State lives in the instance, never in package
// globals, so independent instances cannot interfere.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/nstefanov/authcore/internal/crypto"
	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/model"
	"github.com/nstefanov/authcore/internal/provider"
)

// Provider is the in-memory identity provider.
type Provider struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*model.User
	now   func() time.Time
}

var _ provider.Provider = (*Provider)(nil)

// New constructs an empty in-memory provider.
func New() *Provider {
	return &Provider{users: make(map[uuid.UUID]*model.User), now: time.Now}
}

func (p *Provider) findByEmail(email string) *model.User {
	for _, u := range p.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (p *Provider) CreateUser(_ context.Context, email, password, name string) (*model.User, error) {
	email = provider.NormalizeEmail(email)
	if !provider.ValidEmail(email) {
		return nil, errs.ErrInvalidEmail
	}
	if len(password) < provider.MinPasswordLen {
		return nil, errs.ErrWeakPassword
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findByEmail(email) != nil {
		return nil, errs.ErrEmailExists
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
	p.users[id] = u
	return u.Redacted(), nil
}

func (p *Provider) AuthenticateUser(_ context.Context, email, password string) (*model.User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u := p.findByEmail(provider.NormalizeEmail(email))
	if u == nil || !crypto.VerifyPassword([]byte(password), u.Salt, u.PwdHash) {
		return nil, errs.ErrInvalidCredentials
	}
	return u.Redacted(), nil
}

func (p *Provider) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.users[id]
	if !ok {
		return nil, nil
	}
	return u.Redacted(), nil
}

func (p *Provider) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u := p.findByEmail(provider.NormalizeEmail(email))
	if u == nil {
		return nil, nil
	}
	return u.Redacted(), nil
}

func (p *Provider) UpdateUser(_ context.Context, id uuid.UUID, upd model.UserUpdate) (*model.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	if upd.Email != nil {
		email := provider.NormalizeEmail(*upd.Email)
		if !provider.ValidEmail(email) {
			return nil, errs.ErrInvalidEmail
		}
		if other := p.findByEmail(email); other != nil && other.ID != id {
			return nil, errs.ErrEmailInUse
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
	return u.Redacted(), nil
}

func (p *Provider) DeleteUser(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[id]; !ok {
		return errs.ErrUserNotFound
	}
	delete(p.users, id)
	return nil
}

func (p *Provider) VerifyUserEmail(_ context.Context, id uuid.UUID) (*model.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	now := p.now()
	u.EmailVerified = &now
	u.UpdatedAt = now
	return u.Redacted(), nil
}

func (p *Provider) ChangeUserPassword(_ context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	if !crypto.VerifyPassword([]byte(currentPassword), u.Salt, u.PwdHash) {
		return errs.ErrWrongCurrentPassword
	}
	if len(newPassword) < provider.MinPasswordLen {
		return errs.ErrWeakPassword
	}
	return p.setPassword(u, newPassword)
}

func (p *Provider) ResetUserPassword(_ context.Context, id uuid.UUID, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	if len(newPassword) < provider.MinPasswordLen {
		return errs.ErrWeakPassword
	}
	return p.setPassword(u, newPassword)
}

func (p *Provider) setPassword(u *model.User, password string) error {
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return err
	}
	u.Salt = salt
	u.PwdHash = crypto.HashPassword([]byte(password), salt)
	u.UpdatedAt = p.now()
	return nil
}

func (p *Provider) SignInWithOAuth(context.Context, string, string) (string, error) {
	return "", errs.ErrOAuthNotConfigured
}

func (p *Provider) AvailableOAuthProviders() []string { return nil }

func (p *Provider) IsConfigured(context.Context) bool { return true }

func (p *Provider) Configuration() provider.Configuration {
	return provider.Configuration{Label: "mock"}
}
