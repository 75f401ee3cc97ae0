package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/internal/service"
	"github.com/onurcolak/bulk-dispatch-service/pkg/database"
	"github.com/onurcolak/bulk-dispatch-service/pkg/directory"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
	"github.com/onurcolak/bulk-dispatch-service/pkg/storage"
)

var cfg *environments.Config

func main() {
	root := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Maintenance commands for the bulk dispatch service",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = environments.Load()
			logger.Init(cfg.Log.Level)
		},
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(cleanupUploadsCmd())
	root.AddCommand(refreshTokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the message log schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *sqlx.DB) error {
				return database.RunMigrations(db)
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample log rows for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *sqlx.DB) error {
				if err := database.RunMigrations(db); err != nil {
					return err
				}
				if err := database.SeedTestData(db); err != nil {
					return err
				}
				logger.Infof("Seed completed successfully")
				return nil
			})
		},
	}
}

func cleanupUploadsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup-uploads",
		Short: "Delete uploaded attachments older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewLocalStore(cfg.Upload)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.Upload.RetentionDays
			}

			removed, err := service.NewUploadService(store, days).CleanupExpired()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s) from %s\n", removed, store.Dir())
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: UPLOAD_RETENTION_DAYS)")
	return cmd
}

func refreshTokenCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "refresh-token",
		Short: "Log in to the contact directory and check the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			token, err := directory.NewTokenManager(cfg.Directory).Token(ctx, true)
			if err != nil {
				return fmt.Errorf("directory login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "directory login ok (token length %d)\n", len(token))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall login timeout")
	return cmd
}

func withDB(fn func(db *sqlx.DB) error) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorf("Failed to close database: %v", err)
		}
	}()
	return fn(db)
}
