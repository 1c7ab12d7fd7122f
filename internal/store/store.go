package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when registering a username that is taken.
	ErrDuplicateUsername = errors.New("username is already taken")

	// ErrDuplicateEmail is returned when registering an email that is taken.
	ErrDuplicateEmail = errors.New("email is already registered")
)

// UserStoreIface exposes user data operations.
// Handlers and middleware depend on this interface, not on *UserStore.
type UserStoreIface interface {
	Create(ctx context.Context, nu NewUser) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpsertOIDC(ctx context.Context, issuer, subject, email, name string) (*User, error)
	Count(ctx context.Context) (int, error)
}

var _ UserStoreIface = (*UserStore)(nil)
