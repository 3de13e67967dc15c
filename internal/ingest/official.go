package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/resolve"
	"github.com/JakeFAU/rally-results-ingest/internal/source/official"
)

// SyncCalendar upserts the active season's events as upcoming rallies.
// Completed rallies keep their status. A zero season takes each event's
// season from its start date.
func (s *Service) SyncCalendar(ctx context.Context, season int) (_ CalendarSummary, err error) {
	defer func() { metrics.ObserveRun("sync_calendar", err) }()

	items, err := s.official.ActiveSeason(ctx)
	if err != nil {
		return CalendarSummary{}, fmt.Errorf("sync calendar: %w", err)
	}
	rallies := official.MapCalendar(items, season)
	if len(rallies) == 0 {
		return CalendarSummary{}, fmt.Errorf("sync calendar: %w: no events in the active season", rally.ErrNoData)
	}

	sum := CalendarSummary{Season: season}
	for _, r := range rallies {
		res, err := s.store.UpsertRally(ctx, r)
		if err != nil {
			return sum, fmt.Errorf("sync calendar: round %d: %w", r.Round, err)
		}
		tally("rally", res, &sum.Changed)
		sum.Upserted++
	}
	s.logger.Info("calendar synced",
		zap.Int("season", season),
		zap.Int("upserted", sum.Upserted),
		zap.Int("changed", sum.Changed),
	)
	return sum, nil
}

type stageKey struct {
	stageID int64
	crewID  int64
}

// rallySync carries the state of one SyncRally run between steps.
type rallySync struct {
	rally    rally.Rally
	eventID  int64
	resolver *resolve.Resolver
	sum      RallySummary

	externalIDs map[int]string
	stages      []rally.Stage
	crewIDs     map[int64]bool
	crews       []rally.CrewRef
	stageRecs   map[stageKey]*rally.StageResult
	overall     map[int64]*rally.OverallResult
	order       []int64
}

// SyncRally ingests one event from the official API. The rally must exist
// from a calendar sync. Only top-class crews are imported. Itinerary and
// entry list failures abort the run; later steps are skipped on failure and
// reported in the summary. A rally that yields no overall results is
// rally.ErrNoData.
func (s *Service) SyncRally(ctx context.Context, eventID int64) (_ RallySummary, err error) {
	defer func() { metrics.ObserveRun("sync_rally", err) }()
	return s.syncRally(ctx, eventID, true)
}

// syncRally runs one event. Within a season run a rally that has not been
// held yet legitimately has no results, so requireResults is false there.
func (s *Service) syncRally(ctx context.Context, eventID int64, requireResults bool) (RallySummary, error) {
	r, err := s.store.FindRallyByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, rally.ErrNotFound) {
			return RallySummary{}, fmt.Errorf("event %d: %w: sync calendar first", eventID, rally.ErrNotFound)
		}
		return RallySummary{}, fmt.Errorf("find event %d: %w", eventID, err)
	}
	run := &rallySync{
		rally:       r,
		eventID:     eventID,
		resolver:    resolve.NewResolver(s.store, s.logger),
		sum:         RallySummary{RallyID: r.ID, EventID: eventID, Name: r.Name, Errors: []StepError{}},
		externalIDs: make(map[int]string),
		crewIDs:     make(map[int64]bool),
		stageRecs:   make(map[stageKey]*rally.StageResult),
		overall:     make(map[int64]*rally.OverallResult),
	}
	log := s.logger.With(zap.Int64("event_id", eventID), zap.Int("season", r.Season), zap.Int("round", r.Round))

	if err := s.syncStages(ctx, run); err != nil {
		return run.sum, fmt.Errorf("sync event %d stages: %w", eventID, err)
	}
	if err := s.syncCrews(ctx, run); err != nil {
		return run.sum, fmt.Errorf("sync event %d crews: %w", eventID, err)
	}

	run.stages, err = s.store.ListStages(ctx, r.ID)
	if err != nil {
		return run.sum, fmt.Errorf("list stages: %w", err)
	}
	crews, err := s.store.ListCrews(ctx, r.ID)
	if err != nil {
		return run.sum, fmt.Errorf("list crews: %w", err)
	}
	for _, c := range crews {
		if run.crewIDs[c.CrewID] {
			run.crews = append(run.crews, c)
		}
	}

	s.trySkip(log, run, "stage_results", func() error { return s.syncStageResults(ctx, run, log) })
	s.trySkip(log, run, "overall_results", func() error { return s.collectOverall(ctx, run) })
	s.trySkip(log, run, "penalties", func() error { return s.applyPenalties(ctx, run) })
	s.trySkip(log, run, "retirements", func() error { return s.collectRetirements(ctx, run) })
	if err := s.storeOverall(ctx, run); err != nil {
		return run.sum, fmt.Errorf("store overall results: %w", err)
	}
	if run.sum.OverallResults == 0 && requireResults {
		return run.sum, fmt.Errorf("event %d: %w: no %s overall results", eventID, rally.ErrNoData, s.topClass())
	}

	if run.sum.OverallResults > 0 {
		res, err := s.store.UpsertRally(ctx, rally.Rally{
			Season: r.Season,
			Round:  r.Round,
			Name:   r.Name,
			Status: rally.StatusCompleted,
		})
		if err != nil {
			return run.sum, fmt.Errorf("mark rally completed: %w", err)
		}
		tally("rally", res, &run.sum.Changed)
	}
	log.Info("rally synced",
		zap.Int("stages", run.sum.Stages),
		zap.Int("crews", run.sum.Crews),
		zap.Int("stage_results", run.sum.StageResults),
		zap.Int("overall_results", run.sum.OverallResults),
		zap.Int("skipped", run.sum.Skipped),
		zap.Int("changed", run.sum.Changed),
		zap.Int("errors", len(run.sum.Errors)),
	)
	return run.sum, nil
}

func (s *Service) trySkip(log *zap.Logger, run *rallySync, step string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn("step skipped", zap.String("step", step), zap.Error(err))
		run.sum.Errors = append(run.sum.Errors, StepError{Step: step, Error: err.Error()})
	}
}

func (s *Service) syncStages(ctx context.Context, run *rallySync) error {
	doc, err := s.official.EventItinerary(ctx, run.eventID)
	if err != nil {
		return err
	}
	for _, rec := range official.MapItinerary(doc) {
		rec.Stage.RallyID = run.rally.ID
		res, err := s.store.UpsertStage(ctx, rec.Stage)
		if err != nil {
			return fmt.Errorf("stage %d: %w", rec.Stage.Number, err)
		}
		tally("stage", res, &run.sum.Changed)
		run.externalIDs[rec.Stage.Number] = rec.ExternalID
		run.sum.Stages++
	}
	return nil
}

func (s *Service) syncCrews(ctx context.Context, run *rallySync) error {
	doc, err := s.official.EventCars(ctx, run.eventID)
	if err != nil {
		return err
	}
	for _, entry := range official.MapEntries(doc) {
		if !s.inTopClass(entry.CarClass) {
			run.sum.Filtered++
			metrics.ObserveRows("crew", "filtered", 1)
			continue
		}
		res, err := s.upsertEntry(ctx, run.resolver, run.rally.ID, entry, &run.sum.Changed)
		switch {
		case errors.Is(err, resolve.ErrUnresolvable):
			run.sum.Skipped++
			metrics.ObserveRows("crew", "skipped", 1)
		case err != nil:
			return fmt.Errorf("entry %q: %w", entry.Driver.Name, err)
		default:
			run.crewIDs[res.ID] = true
			run.sum.Crews++
		}
	}
	return nil
}

func (run *rallySync) externalID(number int) string {
	if id, ok := run.externalIDs[number]; ok {
		return id
	}
	return strconv.Itoa(number)
}

// syncStageResults stores every stored stage's times. Stages whose times
// are empty fall back to the split times. Gaps the feed leaves out are
// computed among the stage's resolved crews. A failing stage is reported
// and the remaining stages continue.
func (s *Service) syncStageResults(ctx context.Context, run *rallySync, log *zap.Logger) error {
	var failed []error
	for _, st := range run.stages {
		extID := run.externalID(st.Number)
		doc, err := s.official.StageTimes(ctx, run.eventID, extID)
		if err != nil {
			failed = append(failed, fmt.Errorf("SS%d: %w", st.Number, err))
			continue
		}
		recs := official.MapStageTimes(doc)
		if len(recs) == 0 {
			if splits, err := s.official.SplitTimes(ctx, run.eventID, extID); err == nil {
				recs = official.MapSplitFinish(splits)
			} else {
				log.Debug("split times unavailable", zap.Int("stage", st.Number), zap.Error(err))
			}
		}

		results := make([]rally.StageResult, 0, len(recs))
		for _, rec := range recs {
			crew, ok := rec.Ref.Resolve(run.crews)
			if !ok {
				run.sum.Skipped++
				metrics.ObserveRows("stage_result", "skipped", 1)
				continue
			}
			result := rec.Result
			result.StageID = st.ID
			result.CrewID = crew.CrewID
			results = append(results, result)
		}
		fillStageGaps(results)

		for i := range results {
			result := results[i]
			res, err := s.store.UpsertStageResult(ctx, result)
			if err != nil {
				return fmt.Errorf("SS%d crew %d: %w", st.Number, result.CrewID, err)
			}
			tally("stage_result", res, &run.sum.Changed)
			run.stageRecs[stageKey{st.ID, result.CrewID}] = &result
			run.sum.StageResults++
		}
	}
	return errors.Join(failed...)
}

// fillStageGaps sets the leader and previous-crew gaps of one stage's
// results where the source did not supply them.
func fillStageGaps(results []rally.StageResult) {
	times := make([]*int64, len(results))
	for i := range results {
		times[i] = results[i].StageTimeMS
	}
	first := rally.LeaderGaps(times)
	prev := rally.PreviousGaps(times)
	for i := range results {
		if results[i].GapFirstMS == nil {
			results[i].GapFirstMS = first[i]
		}
		if results[i].GapPrevMS == nil {
			results[i].GapPrevMS = prev[i]
		}
	}
}

// collectOverall maps the final classification. Records are stored after
// retirements have been applied so a re-sync writes the same row.
func (s *Service) collectOverall(ctx context.Context, run *rallySync) error {
	doc, err := s.official.EventResult(ctx, run.eventID)
	if err != nil {
		return err
	}
	for _, rec := range official.MapOverall(doc) {
		crew, ok := rec.Ref.Resolve(run.crews)
		if !ok {
			run.sum.Skipped++
			metrics.ObserveRows("overall_result", "skipped", 1)
			continue
		}
		result := rec.Result
		result.RallyID = run.rally.ID
		result.CrewID = crew.CrewID
		run.keepOverall(&result)
	}
	return nil
}

func (run *rallySync) keepOverall(r *rally.OverallResult) {
	if _, ok := run.overall[r.CrewID]; !ok {
		run.order = append(run.order, r.CrewID)
	}
	run.overall[r.CrewID] = r
}

// stageByRef finds the stored stage a penalty names, by external id first.
func (run *rallySync) stageByRef(externalID *string, number *int) (rally.Stage, bool) {
	for _, st := range run.stages {
		if externalID != nil && run.externalID(st.Number) == *externalID {
			return st, true
		}
	}
	for _, st := range run.stages {
		if number != nil && st.Number == *number {
			return st, true
		}
	}
	return rally.Stage{}, false
}

// applyPenalties fills penalty time and reason on stage results stored in
// this run. Results that already carry a penalty keep it.
func (s *Service) applyPenalties(ctx context.Context, run *rallySync) error {
	doc, err := s.official.Penalties(ctx, run.eventID)
	if err != nil {
		return err
	}
	for _, p := range official.MapPenalties(doc) {
		crew, okCrew := p.Ref.Resolve(run.crews)
		st, okStage := run.stageByRef(p.StageExternalID, p.StageNumber)
		if !okCrew || !okStage {
			run.sum.Skipped++
			continue
		}
		rec, ok := run.stageRecs[stageKey{st.ID, crew.CrewID}]
		if !ok || rec.PenaltyMS != nil {
			run.sum.Skipped++
			continue
		}
		rec.PenaltyMS = p.PenaltyMS
		if rec.PenaltyReason == nil {
			rec.PenaltyReason = p.Reason
		}
		res, err := s.store.UpsertStageResult(ctx, *rec)
		if err != nil {
			return fmt.Errorf("penalty SS%d crew %d: %w", st.Number, crew.CrewID, err)
		}
		tally("stage_result", res, &run.sum.Changed)
		run.sum.Penalties++
	}
	return nil
}

// collectRetirements marks crews retired on the pending overall records,
// creating records for crews the classification omitted.
func (s *Service) collectRetirements(ctx context.Context, run *rallySync) error {
	doc, err := s.official.Retirements(ctx, run.eventID)
	if err != nil {
		return err
	}
	for _, ret := range official.MapRetirements(doc) {
		crew, ok := ret.Ref.Resolve(run.crews)
		if !ok {
			run.sum.Skipped++
			continue
		}
		rec, ok := run.overall[crew.CrewID]
		if !ok {
			rec = &rally.OverallResult{RallyID: run.rally.ID, CrewID: crew.CrewID}
			run.keepOverall(rec)
		}
		rec.Position = nil
		rec.Status = rally.ResultRetired
		if ret.Reason != nil {
			rec.RetirementReason = ret.Reason
		}
		run.sum.Retirements++
	}
	return nil
}

// storeOverall fills missing leader gaps and merges the pending records.
func (s *Service) storeOverall(ctx context.Context, run *rallySync) error {
	times := make([]*int64, len(run.order))
	for i, crewID := range run.order {
		if r := run.overall[crewID]; r.Position != nil {
			times[i] = r.TotalTimeMS
		}
	}
	gaps := rally.LeaderGaps(times)
	for i, crewID := range run.order {
		r := run.overall[crewID]
		if r.GapFirstMS == nil {
			r.GapFirstMS = gaps[i]
		}
		res, err := s.store.UpsertOverallResult(ctx, *r)
		if err != nil {
			return fmt.Errorf("crew %d: %w", crewID, err)
		}
		tally("overall_result", res, &run.sum.Changed)
		run.sum.OverallResults++
	}
	return nil
}

// SyncSeason syncs the calendar, then every rally of the season that has
// an event id, in round order. Rally failures are recorded and the run
// continues.
func (s *Service) SyncSeason(ctx context.Context, season int) (_ SeasonSummary, err error) {
	defer func() { metrics.ObserveRun("sync_season", err) }()

	season = s.season(season)
	sum := SeasonSummary{Season: season, Rallies: []RallySummary{}, Errors: []RallyError{}}
	sum.Calendar, err = s.SyncCalendar(ctx, season)
	if err != nil {
		return sum, err
	}
	rallies, err := s.store.ListRallies(ctx, season)
	if err != nil {
		return sum, fmt.Errorf("list rallies %d: %w", season, err)
	}
	for _, r := range rallies {
		if r.EventID == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		rs, err := s.syncRally(ctx, *r.EventID, false)
		if err != nil {
			s.logger.Warn("rally sync failed",
				zap.Int("season", season),
				zap.Int("round", r.Round),
				zap.Int64("event_id", *r.EventID),
				zap.Error(err),
			)
			sum.Errors = append(sum.Errors, RallyError{Rally: r.Name, Round: r.Round, EventID: r.EventID, Error: err.Error()})
			continue
		}
		sum.Rallies = append(sum.Rallies, rs)
	}
	s.logger.Info("season synced",
		zap.Int("season", season),
		zap.Int("rallies", len(sum.Rallies)),
		zap.Int("errors", len(sum.Errors)),
	)
	return sum, nil
}
