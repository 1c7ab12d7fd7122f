package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/build"
	"github.com/joestump/galeria/internal/flash"
	"github.com/joestump/galeria/internal/metrics"
)

// Page is one GET route of the site: the path it answers, the template it
// renders and whether a login is required to see it.
type Page struct {
	Path        string
	Template    string
	Title       string
	RequireAuth bool
}

// DefaultPages is the site map: a public gallery and two members-only pages.
func DefaultPages() []Page {
	return []Page{
		{Path: "/", Template: "index", Title: "Galeria Rotativa"},
		{Path: "/home", Template: "home", Title: "Home", RequireAuth: true},
		{Path: "/dashboard", Template: "dashboard", Title: "Dashboard", RequireAuth: true},
	}
}

// RouteTable is the immutable set of pages, built once at startup.
type RouteTable struct {
	pages  []Page
	byPath map[string]Page
}

// NewRouteTable validates pages and returns the table. Every page needs a
// path starting with "/" and a template; a path may be registered only once.
func NewRouteTable(pages ...Page) (*RouteTable, error) {
	t := &RouteTable{
		pages:  make([]Page, 0, len(pages)),
		byPath: make(map[string]Page, len(pages)),
	}
	for _, p := range pages {
		if p.Path == "" || p.Path[0] != '/' {
			return nil, fmt.Errorf("page %q: path must start with /", p.Path)
		}
		if p.Template == "" {
			return nil, fmt.Errorf("page %q: template is required", p.Path)
		}
		if _, dup := t.byPath[p.Path]; dup {
			return nil, fmt.Errorf("page %q registered twice", p.Path)
		}
		t.pages = append(t.pages, p)
		t.byPath[p.Path] = p
	}
	return t, nil
}

// Lookup returns the page registered for path.
func (t *RouteTable) Lookup(path string) (Page, bool) {
	p, ok := t.byPath[path]
	return p, ok
}

// Pages returns a copy of the pages in registration order.
func (t *RouteTable) Pages() []Page {
	out := make([]Page, len(t.pages))
	copy(out, t.pages)
	return out
}

// OutcomeKind tells the HTTP layer what to do with a page request.
type OutcomeKind int

const (
	// Render the page template for the identity.
	Render OutcomeKind = iota
	// Redirect the visitor to log in; the target is the authenticator's call.
	Redirect
)

func (k OutcomeKind) String() string {
	switch k {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the decision for one page request.
type Outcome struct {
	Kind     OutcomeKind
	Template string
	Identity auth.Identity
}

// Resolve decides whether id may see the page. A gated page never yields
// Render for an anonymous identity.
func (p Page) Resolve(id auth.Identity) Outcome {
	if p.RequireAuth && !id.IsAuthenticated() {
		return Outcome{Kind: Redirect}
	}
	return Outcome{Kind: Render, Template: p.Template, Identity: id}
}

// Authenticator is the authentication collaborator of the page handler.
// It owns both the identity of a request and what happens on denial.
type Authenticator interface {
	IsAuthenticated(r *http.Request) bool
	CurrentIdentity(r *http.Request) auth.Identity
	Deny(w http.ResponseWriter, r *http.Request)
}

var _ Authenticator = (*auth.Middleware)(nil)

// PageData is the template data for the pages in the route table.
type PageData struct {
	BasePage
	Gallery []string
}

// PagesHandler serves the pages of a RouteTable.
type PagesHandler struct {
	auth     Authenticator
	views    Renderer
	sessions *scs.SessionManager
	gallery  []string
	logger   *zap.Logger
}

// NewPagesHandler creates a new PagesHandler. gallery lists the carousel
// image URLs shown on the landing page.
func NewPagesHandler(a Authenticator, v Renderer, sm *scs.SessionManager, gallery []string, logger *zap.Logger) *PagesHandler {
	return &PagesHandler{auth: a, views: v, sessions: sm, gallery: gallery, logger: logger}
}

// Serve returns the GET handler for p.
func (h *PagesHandler) Serve(p Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.Anonymous()
		if h.auth.IsAuthenticated(r) {
			id = h.auth.CurrentIdentity(r)
		}
		out := p.Resolve(id)
		if out.Kind == Redirect {
			metrics.PageDenialsTotal.WithLabelValues(p.Template).Inc()
			h.auth.Deny(w, r)
			return
		}

		if p.RequireAuth {
			w.Header().Set("Cache-Control", "no-store")
		}
		data := PageData{
			BasePage: h.base(r, p.Title, out.Identity),
			Gallery:  h.gallery,
		}
		if writePage(w, h.views, h.logger, http.StatusOK, out.Template, data) {
			metrics.PageRendersTotal.WithLabelValues(out.Template).Inc()
		}
	}
}

func (h *PagesHandler) base(r *http.Request, title string, id auth.Identity) BasePage {
	return BasePage{
		Title:     title,
		Identity:  id,
		Flashes:   flash.Pop(r.Context(), h.sessions),
		CSRFToken: csrfToken(r, h.sessions, h.logger),
		Version:   build.Version,
	}
}

// csrfToken returns the session's form token. On failure the page still
// renders; its forms are then refused by VerifyCSRF.
func csrfToken(r *http.Request, sm *scs.SessionManager, logger *zap.Logger) string {
	tok, err := auth.CSRFToken(r.Context(), sm)
	if err != nil {
		logger.Error("csrf token", zap.Error(err))
	}
	return tok
}

// writePage renders into a buffer first so a failing template never leaves
// a half-written page. Template errors are logged and answered with 500.
func writePage(w http.ResponseWriter, v Renderer, logger *zap.Logger, status int, name string, data any) bool {
	var buf bytes.Buffer
	if err := v.Render(&buf, name, data); err != nil {
		metrics.RenderErrorsTotal.WithLabelValues(name).Inc()
		logger.Error("render page", zap.String("template", name), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return false
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return true
}
