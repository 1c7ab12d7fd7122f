package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/config"
	"github.com/joestump/galeria/internal/db"
	"github.com/joestump/galeria/internal/handler"
	"github.com/joestump/galeria/internal/logging"
	"github.com/joestump/galeria/internal/metrics"
	"github.com/joestump/galeria/internal/store"
	"github.com/joestump/galeria/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	database, err := db.New(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(database, cfg.DB.Driver); err != nil {
		return err
	}

	opts := auth.SessionOptions{
		Store:    cfg.Session.Store,
		DB:       database,
		Driver:   cfg.DB.Driver,
		Lifetime: cfg.Session.Lifetime,
		Secure:   !cfg.Session.InsecureCookies,
	}
	if cfg.Session.Store == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts.Redis = rdb
	}
	sessionManager, err := auth.NewSessionManager(opts)
	if err != nil {
		return err
	}

	userStore := store.NewUserStore(database)
	userCount, err := userStore.Count(ctx)
	if err != nil {
		return err
	}
	metrics.UsersTotal.Set(float64(userCount))

	var oidcHandlers *auth.OIDCHandlers
	if cfg.OIDCEnabled() {
		provider, err := auth.NewProvider(ctx, auth.ProviderOptions{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
		})
		if err != nil {
			return err
		}
		oidcHandlers = auth.NewOIDCHandlers(provider, sessionManager, userStore, !cfg.Session.InsecureCookies, logger)
	}

	views, err := handler.NewViews(web.TemplateFS)
	if err != nil {
		return err
	}
	routes, err := handler.NewRouteTable(handler.DefaultPages()...)
	if err != nil {
		return err
	}

	router, err := handler.NewRouter(handler.Deps{
		Routes:              routes,
		Views:               views,
		SessionManager:      sessionManager,
		AuthMiddleware:      auth.NewMiddleware(sessionManager, userStore, logger),
		OIDCHandlers:        oidcHandlers,
		UserStore:           userStore,
		Logger:              logger,
		GalleryImages:       cfg.GalleryImages,
		RegistrationEnabled: cfg.RegistrationEnabled,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("session_store", cfg.Session.Store),
			zap.Bool("oidc", oidcHandlers != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
