package auth

import (
	"context"

	"github.com/joestump/galeria/internal/store"
)

// Identity is the user a request acts as: either an authenticated user or
// the anonymous visitor. The zero value is anonymous.
type Identity struct {
	user *store.User
}

// Anonymous returns the identity of a visitor without a session.
func Anonymous() Identity { return Identity{} }

// AuthenticatedAs returns the identity of a signed-in user. A nil user
// yields the anonymous identity.
func AuthenticatedAs(u *store.User) Identity { return Identity{user: u} }

// IsAuthenticated reports whether the identity belongs to a signed-in user.
func (id Identity) IsAuthenticated() bool { return id.user != nil }

// User returns the signed-in user, or false for the anonymous identity.
func (id Identity) User() (*store.User, bool) {
	return id.user, id.user != nil
}

// DisplayName is what templates greet the visitor with.
func (id Identity) DisplayName() string {
	if u, ok := id.User(); ok {
		return u.Name()
	}
	return "Guest"
}

type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity stored by LoadIdentity, or the
// anonymous identity when none was stored.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey).(Identity)
	return id
}
