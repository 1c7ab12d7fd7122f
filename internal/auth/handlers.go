package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/flash"
	"github.com/joestump/galeria/internal/metrics"
	"github.com/joestump/galeria/internal/store"
)

const (
	cookieState        = "__auth_state"
	cookieCodeVerifier = "__auth_pkce"
	cookieRedirect     = "__auth_redirect"
)

// StartSession binds userID to a fresh session token.
func StartSession(ctx context.Context, sm *scs.SessionManager, userID string) error {
	if err := sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("renew session token: %w", err)
	}
	sm.Put(ctx, SessionUserIDKey, userID)
	return nil
}

// EndSession destroys the session. Values put later in the same request
// land in a new session, which is how the logout flash survives.
func EndSession(ctx context.Context, sm *scs.SessionManager) error {
	if err := sm.Destroy(ctx); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// OIDCHandlers provides HTTP handlers for the optional single sign-on flow.
type OIDCHandlers struct {
	provider *Provider
	sessions *scs.SessionManager
	users    store.UserStoreIface
	secure   bool
	logger   *zap.Logger
}

// NewOIDCHandlers creates OIDC handlers. secure controls the Secure flag of
// the short-lived pre-auth cookies.
func NewOIDCHandlers(p *Provider, sm *scs.SessionManager, us store.UserStoreIface, secure bool, logger *zap.Logger) *OIDCHandlers {
	return &OIDCHandlers{provider: p, sessions: sm, users: us, secure: secure, logger: logger}
}

// Login initiates the OIDC authorization code flow with PKCE.
func (h *OIDCHandlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := GenerateState()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.setPreAuthCookie(w, cookieState, state)
	h.setPreAuthCookie(w, cookieCodeVerifier, verifier)
	h.setPreAuthCookie(w, cookieRedirect, SafeRedirect(r.URL.Query().Get("redirect"), HomePath))

	http.Redirect(w, r, h.provider.AuthCodeURL(state, challenge), http.StatusFound)
}

// Callback handles the OIDC provider redirect after authentication.
func (h *OIDCHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(cookieState)
	if err != nil || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	verifierCookie, err := r.Cookie(cookieCodeVerifier)
	if err != nil {
		http.Error(w, "missing code verifier", http.StatusBadRequest)
		return
	}

	claims, err := h.provider.Exchange(r.Context(), r.URL.Query().Get("code"), verifierCookie.Value)
	if err != nil {
		h.logger.Warn("oidc exchange failed", zap.Error(err))
		metrics.LoginsTotal.WithLabelValues("oidc", "failure").Inc()
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	user, err := h.users.UpsertOIDC(r.Context(), claims.Issuer, claims.Subject, claims.Email, claims.Name)
	if errors.Is(err, store.ErrDuplicateEmail) {
		metrics.LoginsTotal.WithLabelValues("oidc", "failure").Inc()
		flash.Add(r.Context(), h.sessions, flash.Danger, "An account with this email already exists. Log in with your password.")
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}
	if err != nil {
		h.logger.Error("upsert oidc user", zap.Error(err))
		http.Error(w, "user record error", http.StatusInternalServerError)
		return
	}

	if err := StartSession(r.Context(), h.sessions, user.ID); err != nil {
		h.logger.Error("start session", zap.Error(err))
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	metrics.LoginsTotal.WithLabelValues("oidc", "success").Inc()
	flash.Add(r.Context(), h.sessions, flash.Success, "Welcome, "+user.Name()+"!")

	clearCookie(w, cookieState)
	clearCookie(w, cookieCodeVerifier)

	redirect := HomePath
	if c, err := r.Cookie(cookieRedirect); err == nil {
		redirect = SafeRedirect(c.Value, HomePath)
	}
	clearCookie(w, cookieRedirect)

	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *OIDCHandlers) setPreAuthCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   300, // 5 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
}
