package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xela07ax/requestflow/internal/repository/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return applyMigrations(cmd.Context(), db, logger)
		},
	}
}
