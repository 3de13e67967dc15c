// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/cache"
	"github.com/JakeFAU/rally-results-ingest/internal/clock/system"
	"github.com/JakeFAU/rally-results-ingest/internal/config"
	"github.com/JakeFAU/rally-results-ingest/internal/fetcher"
	collyfetcher "github.com/JakeFAU/rally-results-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/rally-results-ingest/internal/ingest"
	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/source/aggregator"
	"github.com/JakeFAU/rally-results-ingest/internal/source/official"
	"github.com/JakeFAU/rally-results-ingest/internal/source/standings"
	"github.com/JakeFAU/rally-results-ingest/internal/storage/memory"
	"github.com/JakeFAU/rally-results-ingest/internal/storage/postgres"
)

// migrator is implemented by stores that own a schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

// App holds the shared, long-lived services: the logger, the store and the
// ingestion service built on top of the three sources. It is initialized
// once at startup and closed by the command that created it.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   rally.Store
	service *ingest.Service
}

// New builds every service from cfg and fails fast if the store cannot be opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	store, err := openStore(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	retry := fetcher.NewRetryPolicy(
		cfg.HTTP.MaxRetries,
		config.Millis(cfg.HTTP.BackoffInitialMs),
		config.Millis(cfg.HTTP.BackoffMaxMs),
	)
	breaker := fetcher.BreakerConfig{
		FailureThreshold: uint32(max(cfg.Official.BreakerFailures, 0)),
		Cooldown:         config.Seconds(cfg.Official.BreakerCooldownSeconds),
	}
	timeout := config.Seconds(cfg.HTTP.TimeoutSeconds)

	window := ratelimit.New(ratelimit.Config{
		Quota:      cfg.Official.Quota,
		Window:     config.Seconds(cfg.Official.WindowSeconds),
		MinSpacing: config.Millis(cfg.Official.MinSpacingMs),
	}, clock)
	cacheTTL := config.Seconds(cfg.Official.CacheTTLSeconds)
	officialClient := official.New(official.Config{
		BaseURL:     cfg.Official.BaseURL,
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     timeout,
		CacheTTL:    cacheTTL,
		CalendarTTL: config.Seconds(cfg.Official.CalendarTTLSeconds),
	}, window, cache.New(cacheTTL, 2*cacheTTL), fetcher.NewGuard(official.Source, breaker, retry, clock, logger), logger)

	aggregatorPages := collyfetcher.New(collyfetcher.Config{
		Source:        aggregator.Source,
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       timeout,
	}, fetcher.NewGuard(aggregator.Source, breaker, retry, clock, logger), logger)
	aggregatorClient := aggregator.New(aggregator.Config{
		BaseURL:  cfg.Aggregator.BaseURL,
		TopClass: cfg.Aggregator.TopClass,
	}, aggregatorPages, aggregator.NewCatalog(cfg.Aggregator.Events), logger)

	standingsPages := collyfetcher.New(collyfetcher.Config{
		Source:        standings.Source,
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       timeout,
	}, fetcher.NewGuard(standings.Source, breaker, retry, clock, logger), logger)
	standingsClient := standings.New(cfg.Standings.BaseURL, standingsPages, logger)

	var affiliations *standings.Affiliations
	if len(cfg.Standings.Affiliations) > 0 {
		affiliations = standings.NewAffiliations(cfg.Standings.Affiliations)
	}

	service := ingest.New(ingest.Config{
		PolitenessDelay: config.Millis(cfg.Aggregator.PolitenessMs),
		TopClass:        cfg.Aggregator.TopClass,
	}, ingest.Deps{
		Store:        store,
		Official:     officialClient,
		Aggregator:   aggregatorClient,
		Standings:    standingsClient,
		Affiliations: affiliations,
		Clock:        clock,
		Logger:       logger,
	})

	logger.Info("application services initialized",
		zap.String("store", cfg.DB.Driver),
		zap.Int("quota", cfg.Official.Quota),
		zap.Int("catalog_overrides", len(cfg.Aggregator.Events)),
	)
	return &App{cfg: cfg, logger: logger, store: store, service: service}, nil
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (rally.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to postgres")
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: int32(max(cfg.MaxConns, 0)),
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return store, nil
	case config.DriverMemory, "":
		logger.Info("using in-memory store; results are discarded on exit")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store exposes the configured store.
func (a *App) Store() rally.Store {
	return a.store
}

// Service returns the ingestion service.
func (a *App) Service() *ingest.Service {
	return a.service
}

// Migrate applies the store schema. Stores without one are left alone.
func (a *App) Migrate(ctx context.Context) (bool, error) {
	m, ok := a.store.(migrator)
	if !ok {
		return false, nil
	}
	if err := m.Migrate(ctx); err != nil {
		return false, fmt.Errorf("migrate: %w", err)
	}
	return true, nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	a.store.Close()
	// Sync fails on stdout/stderr for some platforms; nothing useful to do about it.
	_ = a.logger.Sync()
}
