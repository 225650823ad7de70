package main

import (
	"errors"

	"github.com/spf13/cobra"

	"realreview/internal/platform/config"
	"realreview/internal/platform/logger"
	"realreview/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level)
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}

			ctx := cmd.Context()
			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				return err
			}
			log.Info("migrations complete", "applied", applied)
			return nil
		},
	}
}
