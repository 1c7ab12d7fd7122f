package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/flash"
	"github.com/joestump/galeria/internal/store"
)

const (
	LoginPath = "/auth/login"
	HomePath  = "/home"

	loginRequiredMsg = "Please log in to access this page."
)

// Middleware resolves the request identity from the session and enforces
// the login requirement of gated pages.
type Middleware struct {
	sessions *scs.SessionManager
	users    store.UserStoreIface
	logger   *zap.Logger
}

// NewMiddleware creates a new auth Middleware.
func NewMiddleware(sm *scs.SessionManager, us store.UserStoreIface, logger *zap.Logger) *Middleware {
	return &Middleware{sessions: sm, users: us, logger: logger}
}

// LoadIdentity puts the request's Identity on the context. It must run
// inside the session manager's LoadAndSave. A session that references a
// deleted user is destroyed and the request continues as anonymous.
func (m *Middleware) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Anonymous()

		if userID := m.sessions.GetString(r.Context(), SessionUserIDKey); userID != "" {
			user, err := m.users.GetByID(r.Context(), userID)
			switch {
			case err == nil:
				id = AuthenticatedAs(user)
			case errors.Is(err, store.ErrNotFound):
				m.logger.Info("session references missing user", zap.String("user_id", userID))
				_ = m.sessions.Destroy(r.Context())
			default:
				m.logger.Error("load session user", zap.String("user_id", userID), zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// IsAuthenticated reports whether the request carries a signed-in user.
func (m *Middleware) IsAuthenticated(r *http.Request) bool {
	return m.CurrentIdentity(r).IsAuthenticated()
}

// CurrentIdentity returns the identity loaded by LoadIdentity.
func (m *Middleware) CurrentIdentity(r *http.Request) Identity {
	return IdentityFromContext(r.Context())
}

// Deny answers a request that needs a login it does not have. JSON clients
// get 401; browsers are redirected to the login page with the requested URI
// preserved in the redirect parameter.
func (m *Middleware) Deny(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"authentication required"}`))
		return
	}

	flash.Add(r.Context(), m.sessions, flash.Warning, loginRequiredMsg)
	target := LoginPath
	if r.Method == http.MethodGet {
		target += "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// RequireGuest sends signed-in users away from the login and register pages.
func (m *Middleware) RequireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.IsAuthenticated(r) {
			http.Redirect(w, r, HomePath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func wantsJSON(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(v, "application/json") {
			return true
		}
	}
	return false
}

// SafeRedirect returns target when it is a local absolute path and
// fallback otherwise, so the login redirect cannot leave the site.
func SafeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}
