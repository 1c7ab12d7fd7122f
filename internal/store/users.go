package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ProviderLocal marks users who sign in with a username and password.
const ProviderLocal = "local"

type User struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Provider     string    `db:"provider"`
	Subject      string    `db:"subject"`
	DisplayName  string    `db:"display_name"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// NewUser carries the fields for a locally registered user.
// PasswordHash must already be hashed.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
}

const userColumns = `id, username, email, password_hash, provider, subject, display_name, created_at, updated_at`

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a local user. Username and email are unique. The checks
// run before the insert so the error is the same on every driver, and again
// after a failed insert in case a concurrent sign-up claimed the name first.
func (s *UserStore) Create(ctx context.Context, nu NewUser) (*User, error) {
	nu.Username = strings.TrimSpace(nu.Username)
	nu.Email = strings.TrimSpace(nu.Email)

	if err := s.checkUnique(ctx, nu.Username, nu.Email); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &User{
		ID:           uuid.New().String(),
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Provider:     ProviderLocal,
		DisplayName:  nu.DisplayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.insert(ctx, u); err != nil {
		if dup := s.checkUnique(ctx, nu.Username, nu.Email); dup != nil {
			return nil, dup
		}
		return nil, err
	}
	return s.GetByID(ctx, u.ID)
}

// checkUnique returns ErrDuplicateUsername or ErrDuplicateEmail when either
// is already taken.
func (s *UserStore) checkUnique(ctx context.Context, username, email string) error {
	if taken, err := s.exists(ctx, `username = ?`, username); err != nil {
		return err
	} else if taken {
		return ErrDuplicateUsername
	}
	if taken, err := s.exists(ctx, `email = ?`, email); err != nil {
		return err
	} else if taken {
		return ErrDuplicateEmail
	}
	return nil
}

// UpsertOIDC creates or refreshes a user record on single sign-on.
// The email doubles as the username for OIDC users.
func (s *UserStore) UpsertOIDC(ctx context.Context, issuer, subject, email, name string) (*User, error) {
	now := time.Now().UTC()

	existing, err := s.get(ctx, `provider = ? AND subject = ?`, issuer, subject)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE users SET email = ?, display_name = ?, updated_at = ? WHERE id = ?
		`), email, name, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("update oidc user: %w", err)
		}
		return s.GetByID(ctx, existing.ID)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if taken, err := s.exists(ctx, `email = ? OR username = ?`, email, email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDuplicateEmail
	}

	u := &User{
		ID:          uuid.New().String(),
		Username:    email,
		Email:       email,
		Provider:    issuer,
		Subject:     subject,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.insert(ctx, u); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, u.ID)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	return s.get(ctx, `id = ?`, id)
}

// GetByUsername returns the user with the given username, or ErrNotFound.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.get(ctx, `username = ?`, strings.TrimSpace(username))
}

// Count returns the number of registered users.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *UserStore) insert(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.Username, u.Email, u.PasswordHash, u.Provider, u.Subject, u.DisplayName, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) get(ctx context.Context, where string, args ...any) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+where), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) exists(ctx context.Context, where string, args ...any) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE `+where), args...)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}
