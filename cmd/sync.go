package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/rally-results-ingest/internal/api"
	"github.com/JakeFAU/rally-results-ingest/internal/ingest"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync from the official results API",
	}

	var season int
	calendar := &cobra.Command{
		Use:   "calendar",
		Short: "Upsert the season's rallies from the calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOp(cmd, func(ctx context.Context, svc api.Ingestor) (ingest.CalendarSummary, error) {
				return svc.SyncCalendar(ctx, season)
			})
		},
	}
	calendar.Flags().IntVar(&season, "season", 0, "season year (default: current year)")

	var eventID int64
	rallyCmd := &cobra.Command{
		Use:   "rally",
		Short: "Sync stages, crews and results of one event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if eventID <= 0 {
				return fmt.Errorf("--event-id is required")
			}
			return runOp(cmd, func(ctx context.Context, svc api.Ingestor) (ingest.RallySummary, error) {
				return svc.SyncRally(ctx, eventID)
			})
		},
	}
	rallyCmd.Flags().Int64Var(&eventID, "event-id", 0, "official event id")

	var seasonAll int
	seasonCmd := &cobra.Command{
		Use:   "season",
		Short: "Sync the calendar, then every event of the season",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOp(cmd, func(ctx context.Context, svc api.Ingestor) (ingest.SeasonSummary, error) {
				return svc.SyncSeason(ctx, seasonAll)
			})
		},
	}
	seasonCmd.Flags().IntVar(&seasonAll, "season", 0, "season year (default: current year)")

	cmd.AddCommand(calendar, rallyCmd, seasonCmd)
	return cmd
}
