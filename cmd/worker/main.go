package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/wolfman30/pro-marketplace/internal/app/bootstrap"
	appconfig "github.com/wolfman30/pro-marketplace/internal/config"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// The worker runs the outbox deliverer, webhook retry worker and pricing
// poller without serving HTTP.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting marketplace worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	app.RunWorkers(ctx)
	logger.Info("worker stopped")
}
