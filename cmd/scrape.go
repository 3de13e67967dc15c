package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/rally-results-ingest/internal/api"
	"github.com/JakeFAU/rally-results-ingest/internal/ingest"
)

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the results aggregator and the standings page",
	}

	var season, round int
	rallyCmd := &cobra.Command{
		Use:   "rally",
		Short: "Scrape one round's final results and stages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if round <= 0 {
				return fmt.Errorf("--round is required")
			}
			return runOp(cmd, func(ctx context.Context, svc api.Ingestor) (ingest.ScrapeSummary, error) {
				return svc.ScrapeRally(ctx, season, round)
			})
		},
	}
	rallyCmd.Flags().IntVar(&season, "season", 0, "season year (default: current year)")
	rallyCmd.Flags().IntVar(&round, "round", 0, "championship round")

	var seasonAll int
	seasonCmd := &cobra.Command{
		Use:   "season",
		Short: "Scrape every catalog round of the season",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOp(cmd, func(ctx context.Context, svc api.Ingestor) (ingest.ScrapeSeasonSummary, error) {
				return svc.ScrapeSeason(ctx, seasonAll)
			})
		},
	}
	seasonCmd.Flags().IntVar(&seasonAll, "season", 0, "season year (default: current year)")

	var standingsSeason int
	standingsCmd := &cobra.Command{
		Use:   "standings",
		Short: "Replace the season's championship standings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOp(cmd, func(ctx context.Context, svc api.Ingestor) (ingest.StandingsSummary, error) {
				return svc.ScrapeStandings(ctx, standingsSeason)
			})
		},
	}
	standingsCmd.Flags().IntVar(&standingsSeason, "season", 0, "season year (default: current year)")

	cmd.AddCommand(rallyCmd, seasonCmd, standingsCmd)
	return cmd
}
