// Package cmd defines and implements the CLI commands of the rally results ingester.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/api"
	"github.com/JakeFAU/rally-results-ingest/internal/app"
	"github.com/JakeFAU/rally-results-ingest/internal/config"
	"github.com/JakeFAU/rally-results-ingest/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Ingestor() api.Ingestor
	Migrate(ctx context.Context) (bool, error)
}

// container adapts *app.App to App.
type container struct {
	*app.App
}

func (c container) Ingestor() api.Ingestor {
	return c.Service()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return container{a}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "rally-ingest",
		Short: "Ingests rally results, stages and standings into one canonical store.",
		Long: `rally-ingest pulls results from the official results API, the results
aggregator site and the manufacturer standings page, reconciles names and
manufacturers across them, and upserts everything idempotently.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); RALLY_* env vars override it")

	cmd.AddCommand(
		newSyncCmd(),
		newScrapeCmd(),
		newStatsCmd(),
		newStatusCmd(),
		newMigrateCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// runOp resolves the app, runs one operation and prints its summary.
func runOp[T any](cmd *cobra.Command, op func(context.Context, api.Ingestor) (T, error)) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	summary, err := op(cmd.Context(), appInstance.Ingestor())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
