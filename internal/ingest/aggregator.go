package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/resolve"
	"github.com/JakeFAU/rally-results-ingest/internal/source/aggregator"
)

// ScrapeRally ingests one round from the aggregator site: the completed
// rally, its top-class crews and final classification, then its stages.
func (s *Service) ScrapeRally(ctx context.Context, season, round int) (_ ScrapeSummary, err error) {
	defer func() { metrics.ObserveRun("scrape_rally", err) }()

	season = s.season(season)
	ev, err := s.aggregator.Catalog().Lookup(season, round)
	if err != nil {
		return ScrapeSummary{}, err
	}
	return s.scrapeEvent(ctx, ev)
}

func (s *Service) scrapeEvent(ctx context.Context, ev aggregator.Event) (ScrapeSummary, error) {
	log := s.logger.With(zap.Int("season", ev.Season), zap.Int("round", ev.Round), zap.String("rally", ev.Name))
	sum := ScrapeSummary{Rally: ev.Name, Season: ev.Season, Round: ev.Round, Errors: []StepError{}}

	final, err := s.aggregator.FinalResults(ctx, ev)
	if err != nil {
		return sum, fmt.Errorf("scrape %s: %w", ev.Name, err)
	}
	class := s.aggregator.TopClass()
	results := aggregator.FilterClass(final.Results, class)
	log.Debug("results filtered", zap.Int("total", len(final.Results)), zap.Int("class", len(results)))
	if len(results) == 0 {
		return sum, fmt.Errorf("scrape %s: %w: no %s results", ev.Name, rally.ErrNoData, class)
	}

	rr, err := s.store.UpsertRally(ctx, aggregator.MapRally(ev, final.Event))
	if err != nil {
		return sum, fmt.Errorf("scrape %s: upsert rally: %w", ev.Name, err)
	}
	tally("rally", rr, &sum.Changed)
	sum.RallyID = rr.ID

	resolver := resolve.NewResolver(s.store, s.logger)
	overall := aggregator.MapOverall(results)
	for i, r := range results {
		entry, ok := aggregator.MapEntry(r, class)
		if !ok {
			sum.Skipped++
			metrics.ObserveRows("crew", "skipped", 1)
			continue
		}
		crew, err := s.upsertEntry(ctx, resolver, rr.ID, entry, &sum.Changed)
		if errors.Is(err, resolve.ErrUnresolvable) {
			sum.Skipped++
			metrics.ObserveRows("crew", "skipped", 1)
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("scrape %s: entry %q: %w", ev.Name, entry.Driver.Name, err)
		}
		sum.Crews++

		result := overall[i]
		result.RallyID = rr.ID
		result.CrewID = crew.ID
		res, err := s.store.UpsertOverallResult(ctx, result)
		if err != nil {
			return sum, fmt.Errorf("scrape %s: result %q: %w", ev.Name, entry.Driver.Name, err)
		}
		tally("overall_result", res, &sum.Changed)
		sum.Results++
	}

	if err := s.scrapeStages(ctx, ev, rr.ID, &sum); err != nil {
		log.Warn("step skipped", zap.String("step", "stages"), zap.Error(err))
		sum.Errors = append(sum.Errors, StepError{Step: "stages", Error: err.Error()})
	}
	log.Info("rally scraped",
		zap.Int("crews", sum.Crews),
		zap.Int("results", sum.Results),
		zap.Int("stages", sum.Stages),
		zap.Int("skipped", sum.Skipped),
		zap.Int("changed", sum.Changed),
	)
	return sum, nil
}

func (s *Service) scrapeStages(ctx context.Context, ev aggregator.Event, rallyID int64, sum *ScrapeSummary) error {
	raw, err := s.aggregator.Stages(ctx, ev)
	if err != nil {
		return err
	}
	stages := aggregator.MapStages(raw)
	for _, st := range stages {
		st.RallyID = rallyID
		res, err := s.store.UpsertStage(ctx, st)
		if err != nil {
			return fmt.Errorf("stage %d: %w", st.Number, err)
		}
		tally("stage", res, &sum.Changed)
		sum.Stages++
	}
	if len(stages) == 0 {
		return nil
	}
	res, err := s.store.UpsertRally(ctx, rally.Rally{
		Season:      ev.Season,
		Round:       ev.Round,
		Name:        ev.Name,
		TotalStages: rally.Ptr(len(stages)),
		Status:      rally.StatusCompleted,
	})
	if err != nil {
		return fmt.Errorf("total stages: %w", err)
	}
	tally("rally", res, &sum.Changed)
	return nil
}

// ScrapeSeason scrapes every catalog round of season in order, pausing
// between rounds. Round failures are recorded and the run continues.
func (s *Service) ScrapeSeason(ctx context.Context, season int) (_ ScrapeSeasonSummary, err error) {
	defer func() { metrics.ObserveRun("scrape_season", err) }()

	season = s.season(season)
	events := s.aggregator.Catalog().Season(season)
	if len(events) == 0 {
		return ScrapeSeasonSummary{}, fmt.Errorf("scrape season %d: %w: no catalog events", season, rally.ErrNotFound)
	}
	sum := ScrapeSeasonSummary{Season: season, Synced: []ScrapeSummary{}, Errors: []RallyError{}}
	for i, ev := range events {
		if i > 0 && s.cfg.PolitenessDelay > 0 {
			if err := s.clock.Sleep(ctx, s.cfg.PolitenessDelay); err != nil {
				return sum, err
			}
		}
		rs, err := s.scrapeEvent(ctx, ev)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, ctxErr
			}
			s.logger.Warn("rally scrape failed",
				zap.Int("season", season),
				zap.Int("round", ev.Round),
				zap.String("rally", ev.Name),
				zap.Error(err),
			)
			sum.Errors = append(sum.Errors, RallyError{Rally: ev.Name, Round: ev.Round, Error: err.Error()})
			continue
		}
		sum.Synced = append(sum.Synced, rs)
	}
	s.logger.Info("season scraped",
		zap.Int("season", season),
		zap.Int("synced", len(sum.Synced)),
		zap.Int("errors", len(sum.Errors)),
	)
	return sum, nil
}
