package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/advisory"
	"github.com/xela07ax/requestflow/internal/api/handler"
	"github.com/xela07ax/requestflow/internal/api/server"
	"github.com/xela07ax/requestflow/internal/connectors"
	"github.com/xela07ax/requestflow/internal/connectors/jira"
	"github.com/xela07ax/requestflow/internal/events"
	"github.com/xela07ax/requestflow/internal/infra"
	"github.com/xela07ax/requestflow/internal/infra/auth"
	"github.com/xela07ax/requestflow/internal/metrics"
	"github.com/xela07ax/requestflow/internal/repository/memory"
	"github.com/xela07ax/requestflow/internal/repository/postgres"
	"github.com/xela07ax/requestflow/internal/service"
)

func serveCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runServe(cmd.Context(), cfg, logger, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before start")
	return cmd
}

func runServe(ctx context.Context, cfg *infra.Config, logger *zap.Logger, autoMigrate bool) error {
	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	// 2. Хранилище: Postgres или память
	repo, closeRepo, err := openRepository(ctx, cfg, logger, autoMigrate)
	if err != nil {
		return err
	}
	defer closeRepo()

	// 3. Внешние системы под защитой Guard
	jiraGuard := connectors.NewGuard(connectors.GuardSettings{
		Name:        "jira",
		MaxRequests: cfg.Jira.CBMaxRequests,
		Interval:    cfg.Jira.CBInterval,
		Timeout:     cfg.Jira.CBTimeout,
		Attempts:    cfg.Jira.RetryAttempts,
		MaxDelay:    cfg.Jira.RetryMaxDelay,
		CallTimeout: cfg.Jira.Timeout,
		RPS:         cfg.Jira.RateLimitRPS,
		Burst:       cfg.Jira.RateLimitBurst,
	}, m, logger)
	tracker := jira.NewTracker(cfg.Jira, jiraGuard, logger)

	llmGuard := connectors.NewGuard(connectors.GuardSettings{
		Name:        "anthropic",
		MaxRequests: 1,
		Timeout:     time.Minute,
		Attempts:    2,
		CallTimeout: 30 * time.Second,
	}, m, logger)
	advisor, err := advisory.New(cfg.Advisory, llmGuard, logger)
	if err != nil {
		return fmt.Errorf("init advisory: %w", err)
	}

	// 4. События жизненного цикла (необязательно)
	var publisher service.EventPublisher
	if cfg.Redis.Addr != "" {
		rdb := newRedis(cfg.Redis)
		defer func() { _ = rdb.Close() }()
		publisher = events.NewRedisPublisher(rdb)
	} else {
		logger.Info("redis is not configured, lifecycle events are not published")
	}

	// 5. Use-case слой и HTTP
	svc := service.NewRequestService(cfg, repo, tracker, advisor, publisher, m, logger)

	resolver, err := auth.NewResolver(cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	api := server.NewServer(cfg, logger, resolver,
		handler.NewRequestHandler(svc, logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("requestflow API started",
			zap.String("addr", srv.Addr),
			zap.String("auth_mode", cfg.Auth.Mode),
			zap.Bool("permissions_enforced", cfg.Permissions.Enforce))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("requestflow API stopping...")
	// Даем 5 секунд на завершение запросов
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("requestflow API exited properly")
	return nil
}

func openRepository(ctx context.Context, cfg *infra.Config, logger *zap.Logger, autoMigrate bool) (service.RequestRepository, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("database.url is empty, using in-memory repository")
		return memory.NewRequestRepo(), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if autoMigrate {
		if err := applyMigrations(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return postgres.NewRequestRepo(db), func() { _ = db.Close() }, nil
}

func applyMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	applied, err := postgres.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrations applied", zap.Int("count", applied))
	return nil
}

func newRedis(cfg infra.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
