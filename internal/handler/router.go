package handler

import (
	"fmt"
	"io/fs"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/logging"
	"github.com/joestump/galeria/internal/store"
	"github.com/joestump/galeria/web"
)

// Deps holds all dependencies required to build the HTTP router.
type Deps struct {
	Routes         *RouteTable
	Views          Renderer
	SessionManager *scs.SessionManager
	AuthMiddleware *auth.Middleware
	OIDCHandlers   *auth.OIDCHandlers // nil when single sign-on is off
	UserStore      store.UserStoreIface
	Logger         *zap.Logger

	GalleryImages       []string
	RegistrationEnabled bool
}

// NewRouter assembles the chi router with all middleware and routes.
// Every page template named by the route table must exist in the views.
func NewRouter(deps Deps) (http.Handler, error) {
	if v, ok := deps.Views.(interface{ Has(string) bool }); ok {
		for _, p := range deps.Routes.Pages() {
			if !v.Has(p.Template) {
				return nil, fmt.Errorf("page %s: template %q not found", p.Path, p.Template)
			}
		}
	}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	// Static assets (embedded). Use fs.Sub so the file server sees
	// css/app.css and js/main.js directly, not static/css/... paths.
	staticSub, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("sub static FS: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static", http.FileServerFS(staticSub)))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Everything below needs the session and the request identity.
	r.Group(func(r chi.Router) {
		r.Use(deps.SessionManager.LoadAndSave)
		r.Use(deps.AuthMiddleware.LoadIdentity)
		r.Use(deps.AuthMiddleware.VerifyCSRF)

		pages := NewPagesHandler(deps.AuthMiddleware, deps.Views, deps.SessionManager, deps.GalleryImages, deps.Logger)
		for _, p := range deps.Routes.Pages() {
			r.Get(p.Path, pages.Serve(p))
		}

		account := NewAccountHandler(deps.UserStore, deps.SessionManager, deps.Views, deps.Logger,
			deps.RegistrationEnabled, deps.OIDCHandlers != nil)
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireGuest)
			r.Get(auth.LoginPath, account.LoginForm)
			r.Post(auth.LoginPath, account.Login)
			r.Get("/auth/register", account.RegisterForm)
			r.Post("/auth/register", account.Register)
		})
		r.Post("/auth/logout", account.Logout)

		if deps.OIDCHandlers != nil {
			r.Get("/auth/oidc/login", deps.OIDCHandlers.Login)
			r.Get("/auth/oidc/callback", deps.OIDCHandlers.Callback)
		}
	})

	return r, nil
}
