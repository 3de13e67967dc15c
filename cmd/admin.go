package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/api"
	"github.com/JakeFAU/rally-results-ingest/internal/ingest"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Derived statistics",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "recompute",
		Short: "Recompute every driver's career starts, wins, podiums and points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOp(cmd, func(ctx context.Context, svc api.Ingestor) (ingest.StatsSummary, error) {
				return svc.RecomputeDriverStats(ctx)
			})
		},
	})
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the official API quota window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), appInstance.Ingestor().Status())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := appInstance.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]bool{"applied": applied})
		},
	}
}

func newServeCmd() *cobra.Command {
	var drain time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := appInstance.Config()
			logger := appInstance.Logger()
			server := api.NewServer(appInstance.Ingestor(), cfg, logger)
			if err := api.Run(ctx, cfg.Server.Port, server.Handler(), drain, logger); err != nil {
				logger.Error("serve failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&drain, "drain", 10*time.Second, "grace period for in-flight requests on shutdown")
	return cmd
}
