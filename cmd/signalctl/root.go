package main

import (
	"context"
	"errors"
	"fmt"

	"crypto_signals_backend/config"
	"crypto_signals_backend/models"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newRootCmd(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "signalctl",
		Short:         "Operator tools for the signals API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			config.InitLogger(cfg)
			return nil
		},
	}

	root.AddCommand(hashPasswordCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(watchCmd(ctx))
	return root
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer config.CloseDB()

			if err := models.MigrateAll(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database migrations completed successfully")
			return nil
		},
	}
}

// openDB connects to the configured database. The in-memory fallback is
// refused since anything written there vanishes on exit.
func openDB() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg.UsesInMemoryDB() {
		return nil, errors.New("no database configured: set DATABASE_URL or DB_HOST")
	}
	return config.InitDB(cfg)
}
