package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joestump/galeria/internal/auth"
	"github.com/joestump/galeria/internal/config"
	"github.com/joestump/galeria/internal/db"
	"github.com/joestump/galeria/internal/logging"
	"github.com/joestump/galeria/internal/store"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local user accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var username, email, password, displayName string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a local user with a password",
		Args:  cobra.NoArgs,
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

			database, err := db.New(cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if err := db.Migrate(database, cfg.DB.Driver); err != nil {
				return err
			}

			reg := auth.Registration{
				Username:        username,
				Email:           email,
				Password:        password,
				ConfirmPassword: password,
			}
			u, err := createUser(cmd.Context(), store.NewUserStore(database), reg, displayName)
			if err != nil {
				return err
			}

			logger.Info("user created", zap.String("user_id", u.ID), zap.String("username", u.Username))
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "login name (required)")
	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "name shown on pages")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// createUser applies the same rules as the sign-up form.
func createUser(ctx context.Context, users store.UserStoreIface, reg auth.Registration, displayName string) (*store.User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}
	u, err := users.Create(ctx, store.NewUser{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		DisplayName:  displayName,
	})
	if err != nil {
		return nil, fmt.Errorf("create user %q: %w", reg.Username, err)
	}
	return u, nil
}
