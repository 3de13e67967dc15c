// Package main hosts the long-running ingestion service.
//
// The HTTP trigger API in internal/api runs one orchestration operation per
// request and returns its summary. Every operation shares the quota window,
// response cache and circuit breakers built by internal/app, so concurrent
// triggers never exceed the official API quota. Configuration comes from an
// optional file plus RALLY_* environment variables; PORT overrides the
// listen port for container platforms.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/api"
	"github.com/JakeFAU/rally-results-ingest/internal/app"
	"github.com/JakeFAU/rally-results-ingest/internal/config"
	"github.com/JakeFAU/rally-results-ingest/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	migrate := flag.Bool("migrate", false, "Apply the database schema before serving")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		cfg.Server.Port = port
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}
	defer a.Close()

	if *migrate {
		if _, err := a.Migrate(ctx); err != nil {
			logger.Error("migrate failed", zap.Error(err))
			return
		}
	}

	server := api.NewServer(a.Service(), cfg, logger)
	if err := api.Run(ctx, cfg.Server.Port, server.Handler(), 10*time.Second, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
