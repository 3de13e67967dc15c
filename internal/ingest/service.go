// Package ingest orchestrates the sources, the resolver and the store into
// the sync and scrape operations exposed by the CLI and the HTTP API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	tables "github.com/JakeFAU/rally-results-ingest/internal/extract/standings"
	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/resolve"
	"github.com/JakeFAU/rally-results-ingest/internal/source/aggregator"
	"github.com/JakeFAU/rally-results-ingest/internal/source/standings"
)

// OfficialSource is the federation results API.
type OfficialSource interface {
	ActiveSeason(ctx context.Context) ([]any, error)
	EventCars(ctx context.Context, eventID int64) (any, error)
	EventItinerary(ctx context.Context, eventID int64) (any, error)
	EventResult(ctx context.Context, eventID int64) (any, error)
	StageTimes(ctx context.Context, eventID int64, stageExternalID string) (any, error)
	SplitTimes(ctx context.Context, eventID int64, stageExternalID string) (any, error)
	Penalties(ctx context.Context, eventID int64) (any, error)
	Retirements(ctx context.Context, eventID int64) (any, error)
	Status() ratelimit.Status
}

// AggregatorSource is the results-aggregator site.
type AggregatorSource interface {
	Catalog() *aggregator.Catalog
	TopClass() string
	FinalResults(ctx context.Context, ev aggregator.Event) (aggregator.Final, error)
	Stages(ctx context.Context, ev aggregator.Event) ([]aggregator.Stage, error)
}

// StandingsSource is the championship standings page.
type StandingsSource interface {
	Fetch(ctx context.Context, season int) (tables.Tables, error)
}

// Config tunes orchestration.
type Config struct {
	// PolitenessDelay separates consecutive rallies of a season scrape.
	PolitenessDelay time.Duration
	// TopClass is the competition class kept from the official entry list.
	TopClass string
}

// Service runs ingestion operations against one store. Operations are safe
// to call concurrently; work inside one operation is sequential.
type Service struct {
	cfg          Config
	store        rally.Store
	official     OfficialSource
	aggregator   AggregatorSource
	standings    StandingsSource
	affiliations *standings.Affiliations
	clock        rally.Clock
	logger       *zap.Logger
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Store        rally.Store
	Official     OfficialSource
	Aggregator   AggregatorSource
	Standings    StandingsSource
	Affiliations *standings.Affiliations
	Clock        rally.Clock
	Logger       *zap.Logger
}

// New builds a Service.
func New(cfg Config, deps Deps) *Service {
	if cfg.PolitenessDelay < 0 {
		cfg.PolitenessDelay = 0
	}
	if cfg.TopClass == "" {
		cfg.TopClass = aggregator.DefaultTopClass
	}
	if deps.Affiliations == nil {
		deps.Affiliations = standings.NewAffiliations(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		cfg:          cfg,
		store:        deps.Store,
		official:     deps.Official,
		aggregator:   deps.Aggregator,
		standings:    deps.Standings,
		affiliations: deps.Affiliations,
		clock:        deps.Clock,
		logger:       deps.Logger.Named("ingest"),
	}
}

// Status reports the official API quota window.
func (s *Service) Status() ratelimit.Status {
	if s.official == nil {
		return ratelimit.Status{}
	}
	return s.official.Status()
}

// RecomputeDriverStats rebuilds every person's career aggregates.
func (s *Service) RecomputeDriverStats(ctx context.Context) (_ StatsSummary, err error) {
	defer func() { metrics.ObserveRun("recompute_stats", err) }()

	n, err := s.store.RecomputeCareerStats(ctx)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("recompute career stats: %w", err)
	}
	s.logger.Info("career stats recomputed", zap.Int("updated", n))
	return StatsSummary{Updated: n}, nil
}

func (s *Service) topClass() string {
	return s.cfg.TopClass
}

// inTopClass keeps entries of the top class. Entries the source did not
// classify are kept.
func (s *Service) inTopClass(class *string) bool {
	if class == nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(*class), s.cfg.TopClass)
}

// season defaults a zero season to the current year.
func (s *Service) season(season int) int {
	if season != 0 {
		return season
	}
	return s.clock.Now().Year()
}

// tally counts one merge into a summary counter and the row metrics.
func tally(entity string, res rally.UpsertResult, changed *int) {
	switch {
	case res.Inserted:
		metrics.ObserveRows(entity, "inserted", 1)
	case res.Changed:
		metrics.ObserveRows(entity, "updated", 1)
	default:
		metrics.ObserveRows(entity, "unchanged", 1)
	}
	if res.Touched() && changed != nil {
		*changed++
	}
}

// upsertEntry resolves and merges the people, manufacturer and crew of one
// entry. Unresolvable entries return resolve.ErrUnresolvable.
func (s *Service) upsertEntry(ctx context.Context, res *resolve.Resolver, rallyID int64, e rally.Entry, changed *int) (rally.UpsertResult, error) {
	driver, err := res.Person(ctx, rally.RoleDriver, e.Driver)
	if err != nil {
		return rally.UpsertResult{}, err
	}
	tally("driver", driver, changed)

	crew := rally.Crew{
		RallyID:   rallyID,
		DriverID:  driver.ID,
		CarNumber: e.CarNumber,
		CarClass:  e.CarClass,
		TeamName:  e.TeamName,
		Status:    e.Status,
	}
	if e.Codriver != nil {
		codriver, err := res.Person(ctx, rally.RoleCodriver, *e.Codriver)
		switch {
		case err == nil:
			tally("codriver", codriver, changed)
			crew.CodriverID = rally.Ptr(codriver.ID)
		case !errors.Is(err, resolve.ErrUnresolvable):
			return rally.UpsertResult{}, err
		}
	}
	makerID, ok, err := res.Manufacturer(ctx, e.Manufacturer, e.ManufacturerFullName, e.ManufacturerNationality)
	if err != nil {
		return rally.UpsertResult{}, err
	}
	if ok {
		crew.ManufacturerID = rally.Ptr(makerID)
	}
	out, err := res.Crew(ctx, crew)
	if err != nil {
		return rally.UpsertResult{}, err
	}
	tally("crew", out, changed)
	return out, nil
}
