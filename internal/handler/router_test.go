package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/store"
	"github.com/joestump/galeria/internal/testutil"
	"github.com/joestump/galeria/web"
)

type routerTestEnv struct {
	srv    *httptest.Server
	client *http.Client
	users  *store.UserStore
}

// newRouterTestEnv serves the full router over an in-memory SQLite database
// and an in-memory session store. The client keeps cookies and does not
// follow redirects.
func newRouterTestEnv(t *testing.T, registration bool) *routerTestEnv {
	t.Helper()
	users := store.NewUserStore(testutil.NewTestDB(t))
	sm, err := auth.NewSessionManager(auth.SessionOptions{Store: "memory", Lifetime: time.Hour})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	views, err := NewViews(web.TemplateFS)
	if err != nil {
		t.Fatalf("NewViews: %v", err)
	}
	routes, err := NewRouteTable(DefaultPages()...)
	if err != nil {
		t.Fatalf("NewRouteTable: %v", err)
	}
	logger := zap.NewNop()

	h, err := NewRouter(Deps{
		Routes:              routes,
		Views:               views,
		SessionManager:      sm,
		AuthMiddleware:      auth.NewMiddleware(sm, users, logger),
		UserStore:           users,
		Logger:              logger,
		GalleryImages:       []string{"/static/img/slide-1.svg", "/static/img/slide-2.svg"},
		RegistrationEnabled: registration,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &routerTestEnv{srv: srv, client: client, users: users}
}

func (e *routerTestEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

// post submits form with the session's CSRF token unless the form already
// carries one.
func (e *routerTestEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	if !form.Has(auth.CSRFField) {
		withToken := url.Values{auth.CSRFField: {e.csrfToken(t)}}
		for k, vs := range form {
			withToken[k] = vs
		}
		form = withToken
	}
	return e.postRaw(t, path, form)
}

func (e *routerTestEnv) postRaw(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

var csrfMeta = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)">`)

// csrfToken reads the token from the landing page. That request pops any
// pending flashes.
func (e *routerTestEnv) csrfToken(t *testing.T) string {
	t.Helper()
	_, body := e.get(t, "/")
	m := csrfMeta.FindStringSubmatch(body)
	if m == nil {
		t.Fatal("landing page has no csrf-token meta tag")
	}
	return m[1]
}

// seedUser creates a local user with the given password.
func (e *routerTestEnv) seedUser(t *testing.T, username, password string) *store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u, err := e.users.Create(context.Background(), store.NewUser{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		DisplayName:  strings.ToUpper(username[:1]) + username[1:],
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (e *routerTestEnv) login(t *testing.T, username, password string) {
	t.Helper()
	resp, _ := e.post(t, "/auth/login", url.Values{"username": {username}, "password": {password}})
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("login status = %d, want 302", resp.StatusCode)
	}
}

func TestRouter_IndexAnonymous(t *testing.T) {
	env := newRouterTestEnv(t, true)

	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "Hello, Guest!") {
		t.Error("index did not render the anonymous identity")
	}
	if !strings.Contains(body, `id="imageCarousel"`) || !strings.Contains(body, "/static/img/slide-2.svg") {
		t.Error("index did not render the gallery")
	}
}

func TestRouter_GatedPagesRedirectAnonymous(t *testing.T) {
	env := newRouterTestEnv(t, true)

	for _, path := range []string{"/dashboard", "/home"} {
		resp, body := env.get(t, path)
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("%s: status = %d, want 302", path, resp.StatusCode)
		}
		loc, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			t.Fatalf("parse Location: %v", err)
		}
		if loc.Path != auth.LoginPath || loc.Query().Get("redirect") != path {
			t.Errorf("%s: Location = %q", path, loc)
		}
		if strings.Contains(body, "Signed in as") || strings.Contains(body, "Welcome home") {
			t.Errorf("%s: gated content leaked in redirect body", path)
		}
	}

	// The login page shows the denial flash.
	_, body := env.get(t, "/auth/login?redirect=/dashboard")
	if !strings.Contains(body, "Please log in to access this page.") {
		t.Error("login page missing the login-required flash")
	}
	if !strings.Contains(body, `name="redirect" value="/dashboard"`) {
		t.Error("login form lost the redirect target")
	}
}

func TestRouter_DashboardAuthenticated(t *testing.T) {
	env := newRouterTestEnv(t, true)
	env.seedUser(t, "alice", "Sunflower8")
	env.login(t, "alice", "Sunflower8")

	resp, body := env.get(t, "/dashboard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "Signed in as <strong>Alice</strong>") {
		t.Errorf("dashboard did not render the user identity:\n%s", body)
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Error("dashboard response is cacheable")
	}
}

func TestRouter_HomeAuthenticated(t *testing.T) {
	env := newRouterTestEnv(t, true)
	env.seedUser(t, "bob", "Sunflower8")
	env.login(t, "bob", "Sunflower8")

	resp, body := env.get(t, "/home")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "Welcome home, Bob") {
		t.Errorf("home did not render the user identity:\n%s", body)
	}
	if !strings.Contains(body, "Welcome back, Bob!") {
		t.Error("login flash not shown on the first page after login")
	}

	// The index stays public and now greets the user.
	_, body = env.get(t, "/")
	if !strings.Contains(body, "Hello, Bob!") {
		t.Error("index did not render the authenticated identity")
	}
}

func TestRouter_UnknownPathIs404(t *testing.T) {
	env := newRouterTestEnv(t, true)
	resp, _ := env.get(t, "/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_PagesAreGETOnly(t *testing.T) {
	env := newRouterTestEnv(t, true)
	resp, _ := env.post(t, "/dashboard", url.Values{})
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRouter_StaticMetricsHealth(t *testing.T) {
	env := newRouterTestEnv(t, true)

	for _, path := range []string{"/static/js/main.js", "/static/css/app.css", "/static/img/slide-1.svg", "/healthz"} {
		if resp, _ := env.get(t, path); resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, resp.StatusCode)
		}
	}

	// Hit a page so the counter has a sample.
	env.get(t, "/")
	_, body := env.get(t, "/metrics")
	if !strings.Contains(body, `galeria_page_renders_total{template="index"}`) {
		t.Error("metrics missing page render counter")
	}
}

func TestNewRouter_MissingTemplate(t *testing.T) {
	views, err := NewViews(web.TemplateFS)
	if err != nil {
		t.Fatalf("NewViews: %v", err)
	}
	routes, err := NewRouteTable(Page{Path: "/gallery", Template: "gallery"})
	if err != nil {
		t.Fatalf("NewRouteTable: %v", err)
	}
	if _, err := NewRouter(Deps{Routes: routes, Views: views}); err == nil {
		t.Fatal("expected error for a page without a template")
	}
}

func TestRouter_FormsRequireCSRFToken(t *testing.T) {
	env := newRouterTestEnv(t, true)
	env.seedUser(t, "alice", "Sunflower8")
	creds := url.Values{"username": {"alice"}, "password": {"Sunflower8"}}

	// No session at all yet.
	if resp, _ := env.postRaw(t, "/auth/login", creds); resp.StatusCode != http.StatusForbidden {
		t.Errorf("no token: status = %d, want 403", resp.StatusCode)
	}

	token := env.csrfToken(t)
	forged := url.Values{auth.CSRFField: {"forged"}}
	for k, vs := range creds {
		forged[k] = vs
	}
	if resp, _ := env.postRaw(t, "/auth/login", forged); resp.StatusCode != http.StatusForbidden {
		t.Errorf("forged token: status = %d, want 403", resp.StatusCode)
	}
	if resp, _ := env.get(t, "/dashboard"); resp.StatusCode != http.StatusFound {
		t.Fatal("refused login still signed the visitor in")
	}

	// Scripts may send the token as a header instead.
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/auth/login", strings.NewReader(creds.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(auth.CSRFHeader, token)
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("header token: status = %d, want 302", resp.StatusCode)
	}

	// The token survives the login and guards logout too.
	if resp, _ := env.postRaw(t, "/auth/logout", url.Values{}); resp.StatusCode != http.StatusForbidden {
		t.Errorf("logout without token: status = %d, want 403", resp.StatusCode)
	}
	if resp, _ := env.postRaw(t, "/auth/logout", url.Values{auth.CSRFField: {token}}); resp.StatusCode != http.StatusFound {
		t.Errorf("logout with token: status = %d, want 302", resp.StatusCode)
	}
}
