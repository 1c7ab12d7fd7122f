package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/store"
	"github.com/joestump/galeria/internal/testutil"
)

type middlewareEnv struct {
	sm    *scs.SessionManager
	users *store.UserStore
	mw    *auth.Middleware
}

func newMiddlewareEnv(t *testing.T) *middlewareEnv {
	t.Helper()
	users := store.NewUserStore(testutil.NewTestDB(t))
	sm := scs.New()
	return &middlewareEnv{sm: sm, users: users, mw: auth.NewMiddleware(sm, users, zap.NewNop())}
}

// sessionFor logs userID in through a throwaway request and returns the cookie.
func (e *middlewareEnv) sessionFor(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	h := e.sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.StartSession(r.Context(), e.sm, userID); err != nil {
			t.Fatalf("StartSession: %v", err)
		}
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, c := range w.Result().Cookies() {
		if c.Name == e.sm.Cookie.Name {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func (e *middlewareEnv) identityFor(t *testing.T, cookie *http.Cookie) auth.Identity {
	t.Helper()
	var got auth.Identity
	h := e.sm.LoadAndSave(e.mw.LoadIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = e.mw.CurrentIdentity(r)
		if got.IsAuthenticated() != e.mw.IsAuthenticated(r) {
			t.Error("IsAuthenticated disagrees with CurrentIdentity")
		}
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestLoadIdentity_Anonymous(t *testing.T) {
	env := newMiddlewareEnv(t)
	id := env.identityFor(t, nil)
	if id.IsAuthenticated() {
		t.Fatal("request without session is authenticated")
	}
	if id.DisplayName() != "Guest" {
		t.Errorf("DisplayName = %q, want Guest", id.DisplayName())
	}
}

func TestLoadIdentity_Authenticated(t *testing.T) {
	env := newMiddlewareEnv(t)
	u, err := env.users.Create(context.Background(), store.NewUser{Username: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	id := env.identityFor(t, env.sessionFor(t, u.ID))
	got, ok := id.User()
	if !ok {
		t.Fatal("expected authenticated identity")
	}
	if got.ID != u.ID {
		t.Errorf("user ID = %s, want %s", got.ID, u.ID)
	}
}

func TestLoadIdentity_DeletedUser(t *testing.T) {
	env := newMiddlewareEnv(t)
	id := env.identityFor(t, env.sessionFor(t, "no-such-user"))
	if id.IsAuthenticated() {
		t.Fatal("session for a missing user must be anonymous")
	}
}

func TestDeny_RedirectsToLogin(t *testing.T) {
	env := newMiddlewareEnv(t)
	h := env.sm.LoadAndSave(http.HandlerFunc(env.mw.Deny))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard?tab=1", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Path != auth.LoginPath {
		t.Errorf("Location path = %q, want %q", loc.Path, auth.LoginPath)
	}
	if got := loc.Query().Get("redirect"); got != "/dashboard?tab=1" {
		t.Errorf("redirect = %q, want %q", got, "/dashboard?tab=1")
	}
}

func TestDeny_JSONClientsGet401(t *testing.T) {
	env := newMiddlewareEnv(t)
	h := env.sm.LoadAndSave(http.HandlerFunc(env.mw.Deny))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(w.Body.String(), "authentication required") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRequireGuest(t *testing.T) {
	env := newMiddlewareEnv(t)
	u, err := env.users.Create(context.Background(), store.NewUser{Username: "bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	h := env.sm.LoadAndSave(env.mw.LoadIdentity(env.mw.RequireGuest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, auth.LoginPath, nil))
	if w.Code != http.StatusOK {
		t.Errorf("guest status = %d, want 200", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, auth.LoginPath, nil)
	req.AddCookie(env.sessionFor(t, u.ID))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusFound || w.Header().Get("Location") != auth.HomePath {
		t.Errorf("signed-in user: status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/home"},
		{"/dashboard", "/dashboard"},
		{"/dashboard?x=1", "/dashboard?x=1"},
		{"//evil.example.com", "/home"},
		{"/\\evil.example.com", "/home"},
		{"https://evil.example.com/", "/home"},
		{"dashboard", "/home"},
	}
	for _, tt := range tests {
		if got := auth.SafeRedirect(tt.in, "/home"); got != tt.want {
			t.Errorf("SafeRedirect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
