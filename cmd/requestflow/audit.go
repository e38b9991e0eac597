package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/audit"
	"github.com/xela07ax/requestflow/internal/events"
	"github.com/xela07ax/requestflow/internal/infra"
	"github.com/xela07ax/requestflow/internal/metrics"
	"github.com/xela07ax/requestflow/internal/repository/postgres"
)

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Persist lifecycle events from Redis into the request_events table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runAudit(cmd.Context(), cfg, logger)
		},
	}
}

func runAudit(ctx context.Context, cfg *infra.Config, logger *zap.Logger) error {
	if cfg.Database.URL == "" || cfg.Redis.Addr == "" {
		return errors.New("audit requires database.url and redis.addr")
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	rdb := newRedis(cfg.Redis)
	defer func() { _ = rdb.Close() }()

	journal := audit.NewJournal(cfg.Audit, postgres.NewEventRepo(db), metrics.NewMetrics(nil), logger)
	journal.Start()
	defer journal.Stop()

	// Блокируется до отмены контекста, переподключения внутри
	events.ListenResilient(ctx, rdb, logger, infra.RedisChanRequestEvents, journal.Log)
	return nil
}
