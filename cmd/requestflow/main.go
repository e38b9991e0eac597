package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/infra"
)

var rootCmd = &cobra.Command{
	Use:   "requestflow",
	Short: "RequestFlow: client work requests from submission to approval",
	Long: `RequestFlow tracks a client work request through estimation, approval and cancellation,
mirroring each step into Jira on a best-effort basis.

Configuration is read from config.yaml (./ or ./configs), .env and environment variables
(SERVER_PORT overrides server.port).`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd(), auditCmd(), migrateCmd())

	// SIGTERM и Ctrl+C отменяют контекст всех команд
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// bootstrap загружает конфиг и логгер, общие для всех команд.
func bootstrap() (*infra.Config, *zap.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
