// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/nstefanov/authcore/internal/model"
)

// UserRepository provides CRUD access for user records. Email uniqueness is
// enforced by the backend; violations surface as errs.ErrAlreadyExists.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID; errs.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by normalized email; errs.ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update persists all mutable fields of the user row.
	Update(ctx context.Context, u *model.User) error
	// Delete hard-removes the user; errs.ErrNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error
}
