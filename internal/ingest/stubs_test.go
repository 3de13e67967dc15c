package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rally-results-ingest/internal/clock/fake"
	tables "github.com/JakeFAU/rally-results-ingest/internal/extract/standings"
	"github.com/JakeFAU/rally-results-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/source/aggregator"
	"github.com/JakeFAU/rally-results-ingest/internal/storage/memory"
)

// stubOfficial serves canned documents keyed by method and argument.
type stubOfficial struct {
	docs  map[string]any
	fails map[string]error
	calls []string
}

func newStubOfficial() *stubOfficial {
	return &stubOfficial{docs: map[string]any{}, fails: map[string]error{}}
}

func (s *stubOfficial) set(t *testing.T, key, raw string) {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	s.docs[key] = v
}

func (s *stubOfficial) get(key string) (any, error) {
	s.calls = append(s.calls, key)
	if err, ok := s.fails[key]; ok {
		return nil, err
	}
	doc, ok := s.docs[key]
	if !ok {
		return nil, &rally.SourceError{Source: "official", Endpoint: key, Status: 404, Err: rally.ErrSourceUnavailable}
	}
	return doc, nil
}

func (s *stubOfficial) ActiveSeason(context.Context) ([]any, error) {
	doc, err := s.get("calendar")
	if err != nil {
		return nil, err
	}
	items, _ := doc.([]any)
	return items, nil
}

func (s *stubOfficial) EventCars(_ context.Context, id int64) (any, error) {
	return s.get(fmt.Sprintf("cars/%d", id))
}

func (s *stubOfficial) EventItinerary(_ context.Context, id int64) (any, error) {
	return s.get(fmt.Sprintf("itinerary/%d", id))
}

func (s *stubOfficial) EventResult(_ context.Context, id int64) (any, error) {
	return s.get(fmt.Sprintf("result/%d", id))
}

func (s *stubOfficial) StageTimes(_ context.Context, id int64, stage string) (any, error) {
	return s.get(fmt.Sprintf("stage-times/%d/%s", id, stage))
}

func (s *stubOfficial) SplitTimes(_ context.Context, id int64, stage string) (any, error) {
	return s.get(fmt.Sprintf("split-times/%d/%s", id, stage))
}

func (s *stubOfficial) Penalties(_ context.Context, id int64) (any, error) {
	return s.get(fmt.Sprintf("penalties/%d", id))
}

func (s *stubOfficial) Retirements(_ context.Context, id int64) (any, error) {
	return s.get(fmt.Sprintf("retirements/%d", id))
}

func (s *stubOfficial) Status() ratelimit.Status {
	return ratelimit.Status{RequestsInLastHour: len(s.calls), MaxPerHour: 200, Remaining: 200 - len(s.calls)}
}

// stubAggregator serves final results per round.
type stubAggregator struct {
	catalog *aggregator.Catalog
	finals  map[int]aggregator.Final
	fails   map[int]error
	stages  map[int][]aggregator.Stage
}

func (s *stubAggregator) Catalog() *aggregator.Catalog { return s.catalog }

func (s *stubAggregator) TopClass() string { return aggregator.DefaultTopClass }

func (s *stubAggregator) FinalResults(_ context.Context, ev aggregator.Event) (aggregator.Final, error) {
	if err, ok := s.fails[ev.Round]; ok {
		return aggregator.Final{}, err
	}
	final, ok := s.finals[ev.Round]
	if !ok {
		return aggregator.Final{}, fmt.Errorf("%w: round %d", rally.ErrNoData, ev.Round)
	}
	return final, nil
}

func (s *stubAggregator) Stages(_ context.Context, ev aggregator.Event) ([]aggregator.Stage, error) {
	stages, ok := s.stages[ev.Round]
	if !ok {
		return nil, fmt.Errorf("%w: no stages", rally.ErrNoData)
	}
	return stages, nil
}

type stubStandings struct {
	tables tables.Tables
	err    error
}

func (s stubStandings) Fetch(context.Context, int) (tables.Tables, error) {
	return s.tables, s.err
}

type harness struct {
	store      *memory.Store
	official   *stubOfficial
	aggregator *stubAggregator
	standings  *stubStandings
	clock      *fake.Clock
	svc        *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:      memory.NewStore(),
		official:   newStubOfficial(),
		aggregator: &stubAggregator{catalog: aggregator.NewCatalog(nil), finals: map[int]aggregator.Final{}, fails: map[int]error{}, stages: map[int][]aggregator.Stage{}},
		standings:  &stubStandings{},
		clock:      fake.New(time.Date(2025, 11, 20, 8, 0, 0, 0, time.UTC)),
	}
	h.svc = New(Config{PolitenessDelay: time.Second}, Deps{
		Store:      h.store,
		Official:   h.official,
		Aggregator: h.aggregator,
		Standings:  h.standings,
		Clock:      h.clock,
	})
	return h
}

func aggResult(id int64, start, pos int, raw int64, first, last, team, class string) aggregator.Result {
	r := aggregator.Result{ID: id, StartNumber: start, Position: pos}
	r.Time.Raw = raw
	r.Driver = aggregator.Person{ID: id * 10, FirstName: first, LastName: last, Flag: "fi"}
	r.Codriver = aggregator.Person{ID: id*10 + 1, FirstName: "Co", LastName: last + "-Nav", Flag: "fi"}
	r.Team.Name = team
	r.Classes = []aggregator.Class{{ID: 1, Name: class}}
	return r
}
