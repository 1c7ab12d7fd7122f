package handler

import (
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/build"
	"github.com/joestump/galeria/internal/flash"
	"github.com/joestump/galeria/internal/metrics"
	"github.com/joestump/galeria/internal/store"
)

// AccountPage is the template data for the login and register forms.
type AccountPage struct {
	BasePage
	Redirect            string
	Username            string
	Email               string
	Field               string // form field with a validation error
	OIDCEnabled         bool
	RegistrationEnabled bool
}

// AccountHandler serves the password login, registration and logout flow.
type AccountHandler struct {
	users               store.UserStoreIface
	sessions            *scs.SessionManager
	views               Renderer
	logger              *zap.Logger
	registrationEnabled bool
	oidcEnabled         bool
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(us store.UserStoreIface, sm *scs.SessionManager, v Renderer, logger *zap.Logger, registrationEnabled, oidcEnabled bool) *AccountHandler {
	return &AccountHandler{
		users:               us,
		sessions:            sm,
		views:               v,
		logger:              logger,
		registrationEnabled: registrationEnabled,
		oidcEnabled:         oidcEnabled,
	}
}

func (h *AccountHandler) page(r *http.Request, title string) AccountPage {
	return AccountPage{
		BasePage: BasePage{
			Title:     title,
			Identity:  auth.IdentityFromContext(r.Context()),
			Flashes:   flash.Pop(r.Context(), h.sessions),
			CSRFToken: csrfToken(r, h.sessions, h.logger),
			Version:   build.Version,
		},
		OIDCEnabled:         h.oidcEnabled,
		RegistrationEnabled: h.registrationEnabled,
	}
}

// LoginForm serves GET /auth/login.
func (h *AccountHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Log in")
	data.Redirect = auth.SafeRedirect(r.URL.Query().Get("redirect"), auth.HomePath)
	writePage(w, h.views, h.logger, http.StatusOK, "login", data)
}

// Login serves POST /auth/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	redirect := auth.SafeRedirect(r.PostFormValue("redirect"), auth.HomePath)

	user, err := h.users.GetByUsername(r.Context(), username)
	if err == nil {
		err = auth.CheckPassword(user.PasswordHash, password)
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
		metrics.LoginsTotal.WithLabelValues("password", "failure").Inc()
		h.logger.Info("login failed", zap.String("username", username), zap.String("remote", r.RemoteAddr))

		data := h.page(r, "Log in")
		data.Flashes = append(data.Flashes, flash.Flash{Kind: flash.Danger, Message: "Invalid username or password."})
		data.Redirect = redirect
		data.Username = username
		writePage(w, h.views, h.logger, http.StatusUnauthorized, "login", data)
		return
	}
	if err != nil {
		h.logger.Error("login lookup", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := auth.StartSession(r.Context(), h.sessions, user.ID); err != nil {
		h.logger.Error("start session", zap.Error(err))
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	metrics.LoginsTotal.WithLabelValues("password", "success").Inc()
	flash.Add(r.Context(), h.sessions, flash.Success, "Welcome back, "+user.Name()+"!")
	http.Redirect(w, r, redirect, http.StatusFound)
}

// RegisterForm serves GET /auth/register.
func (h *AccountHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if !h.registrationEnabled {
		http.NotFound(w, r)
		return
	}
	writePage(w, h.views, h.logger, http.StatusOK, "register", h.page(r, "Sign up"))
}

// Register serves POST /auth/register. A new account is logged in right away.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.registrationEnabled {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form := auth.Registration{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}

	reject := func(status int, field, msg string) {
		data := h.page(r, "Sign up")
		data.Flashes = append(data.Flashes, flash.Flash{Kind: flash.Danger, Message: msg})
		data.Username = form.Username
		data.Email = form.Email
		data.Field = field
		writePage(w, h.views, h.logger, status, "register", data)
	}

	var ve *auth.ValidationError
	if err := form.Validate(); errors.As(err, &ve) {
		reject(http.StatusUnprocessableEntity, ve.Field, ve.Message)
		return
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := h.users.Create(r.Context(), store.NewUser{
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: hash,
	})
	switch {
	case errors.Is(err, store.ErrDuplicateUsername):
		reject(http.StatusConflict, "username", "That username is already taken.")
		return
	case errors.Is(err, store.ErrDuplicateEmail):
		reject(http.StatusConflict, "email", "An account with this email already exists.")
		return
	case err != nil:
		h.logger.Error("create user", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	metrics.UsersTotal.Inc()
	h.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))

	if err := auth.StartSession(r.Context(), h.sessions, user.ID); err != nil {
		h.logger.Error("start session", zap.Error(err))
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	flash.Add(r.Context(), h.sessions, flash.Success, "Account created. Welcome, "+user.Name()+"!")
	http.Redirect(w, r, auth.HomePath, http.StatusFound)
}

// Logout serves POST /auth/logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := auth.EndSession(r.Context(), h.sessions); err != nil {
		h.logger.Error("end session", zap.Error(err))
		http.Error(w, "logout error", http.StatusInternalServerError)
		return
	}
	flash.Add(r.Context(), h.sessions, flash.Info, "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusFound)
}
