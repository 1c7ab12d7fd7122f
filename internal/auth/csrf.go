package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"
)

const (
	sessionCSRFKey = "csrf_token"

	// CSRFField is the form field carrying the token.
	CSRFField = "csrf_token"
	// CSRFHeader carries the token for script-driven requests.
	CSRFHeader = "X-CSRF-Token"
)

// CSRFToken returns the session's anti-forgery token, creating it on first
// use. The token survives RenewToken and dies with the session.
func CSRFToken(ctx context.Context, sm *scs.SessionManager) (string, error) {
	if tok := sm.GetString(ctx, sessionCSRFKey); tok != "" {
		return tok, nil
	}
	tok, err := randomString(32)
	if err != nil {
		return "", err
	}
	sm.Put(ctx, sessionCSRFKey, tok)
	return tok, nil
}

// VerifyCSRF rejects state-changing requests whose token does not match
// the one in the session. It must run inside LoadAndSave.
func (m *Middleware) VerifyCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		expected := m.sessions.GetString(r.Context(), sessionCSRFKey)
		received := r.Header.Get(CSRFHeader)
		if received == "" {
			received = r.PostFormValue(CSRFField)
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			m.logger.Warn("csrf token mismatch",
				zap.String("path", r.URL.Path),
				zap.Bool("session_token", expected != ""),
			)
			http.Error(w, "invalid or missing CSRF token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
