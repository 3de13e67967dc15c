// Package memory implements rally.Store with mutex-guarded maps. It follows
// the same merge rules as the postgres store and backs tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

type rallyKey struct{ season, round int }

type stageKey struct {
	rallyID int64
	number  int
}

type crewKey struct{ rallyID, driverID int64 }

type resultKey struct{ parentID, crewID int64 }

// Store is an in-memory rally.Store.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	rallies       map[rallyKey]*rally.Rally
	stages        map[stageKey]*rally.Stage
	people        map[rally.Role]map[string]*rally.Person
	manufacturers map[string]*rally.Manufacturer
	crews         map[crewKey]*rally.Crew
	overall       map[resultKey]*rally.OverallResult
	stageResults  map[resultKey]*rally.StageResult

	driverStandings map[int][]rally.DriverStanding
	makerStandings  map[int][]rally.ManufacturerStanding
}

var _ rally.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rallies: make(map[rallyKey]*rally.Rally),
		stages:  make(map[stageKey]*rally.Stage),
		people: map[rally.Role]map[string]*rally.Person{
			rally.RoleDriver:   {},
			rally.RoleCodriver: {},
		},
		manufacturers:   make(map[string]*rally.Manufacturer),
		crews:           make(map[crewKey]*rally.Crew),
		overall:         make(map[resultKey]*rally.OverallResult),
		stageResults:    make(map[resultKey]*rally.StageResult),
		driverStandings: make(map[int][]rally.DriverStanding),
		makerStandings:  make(map[int][]rally.ManufacturerStanding),
	}
}

func (s *Store) newIDLocked() int64 {
	s.nextID++
	return s.nextID
}

// merge applies fn to a copy of current and stores it when anything differs.
func merge[T any](current *T, fn func(*T)) bool {
	next := *current
	fn(&next)
	if reflect.DeepEqual(*current, next) {
		return false
	}
	*current = next
	return true
}

func coalesce[T any](dst **T, in *T) {
	if in != nil {
		v := *in
		*dst = &v
	}
}

func coalesceString(dst *string, in string) {
	if in != "" {
		*dst = in
	}
}

// UpsertRally merges a rally by (season, round).
func (s *Store) UpsertRally(_ context.Context, r rally.Rally) (rally.UpsertResult, error) {
	if r.Season == 0 || r.Round == 0 || r.Name == "" {
		return rally.UpsertResult{}, fmt.Errorf("upsert rally: season, round and name are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rallyKey{r.Season, r.Round}
	cur, ok := s.rallies[key]
	if !ok {
		r.ID = s.newIDLocked()
		r.Status = rally.Status("").Advance(r.Status)
		s.rallies[key] = &r
		return rally.UpsertResult{ID: r.ID, Inserted: true, Changed: true}, nil
	}
	changed := merge(cur, func(x *rally.Rally) {
		coalesceString(&x.Name, r.Name)
		coalesce(&x.OfficialName, r.OfficialName)
		coalesce(&x.Country, r.Country)
		coalesce(&x.Surface, r.Surface)
		coalesce(&x.StartDate, r.StartDate)
		coalesce(&x.EndDate, r.EndDate)
		coalesce(&x.TotalStages, r.TotalStages)
		coalesce(&x.EventID, r.EventID)
		x.Status = x.Status.Advance(r.Status)
	})
	return rally.UpsertResult{ID: cur.ID, Changed: changed}, nil
}

// FindRallyByEventID returns the rally carrying the external event id.
func (s *Store) FindRallyByEventID(_ context.Context, eventID int64) (rally.Rally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rallies {
		if r.EventID != nil && *r.EventID == eventID {
			return *r, nil
		}
	}
	return rally.Rally{}, fmt.Errorf("rally with event id %d: %w", eventID, rally.ErrNotFound)
}

// FindRally returns the rally at (season, round).
func (s *Store) FindRally(_ context.Context, season, round int) (rally.Rally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rallies[rallyKey{season, round}]
	if !ok {
		return rally.Rally{}, fmt.Errorf("rally %d round %d: %w", season, round, rally.ErrNotFound)
	}
	return *r, nil
}

// ListRallies returns a season's rallies in round order.
func (s *Store) ListRallies(_ context.Context, season int) ([]rally.Rally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rally.Rally
	for _, r := range s.rallies {
		if r.Season == season {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

// UpsertStage merges a stage by (rally, number).
func (s *Store) UpsertStage(_ context.Context, st rally.Stage) (rally.UpsertResult, error) {
	if st.RallyID == 0 || st.Number == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert stage: rally and number are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stageKey{st.RallyID, st.Number}
	cur, ok := s.stages[key]
	if !ok {
		st.ID = s.newIDLocked()
		s.stages[key] = &st
		return rally.UpsertResult{ID: st.ID, Inserted: true, Changed: true}, nil
	}
	changed := merge(cur, func(x *rally.Stage) {
		coalesce(&x.Name, st.Name)
		coalesce(&x.DistanceKM, st.DistanceKM)
		coalesce(&x.Surface, st.Surface)
		coalesce(&x.IsPowerStage, st.IsPowerStage)
		coalesce(&x.Leg, st.Leg)
		coalesce(&x.Date, st.Date)
		coalesce(&x.StartTime, st.StartTime)
	})
	return rally.UpsertResult{ID: cur.ID, Changed: changed}, nil
}

// ListStages returns a rally's stages in number order.
func (s *Store) ListStages(_ context.Context, rallyID int64) ([]rally.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rally.Stage
	for _, st := range s.stages {
		if st.RallyID == rallyID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// UpsertPerson merges a driver or codriver by name.
func (s *Store) UpsertPerson(_ context.Context, role rally.Role, p rally.Person) (rally.UpsertResult, error) {
	table, ok := s.people[role]
	if !ok {
		return rally.UpsertResult{}, fmt.Errorf("upsert person: unknown role %q", role)
	}
	if p.Name == "" {
		return rally.UpsertResult{}, fmt.Errorf("upsert %s: name is required", role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := table[p.Name]
	if !ok {
		p.ID = s.newIDLocked()
		p.Career = rally.CareerStats{}
		table[p.Name] = &p
		return rally.UpsertResult{ID: p.ID, Inserted: true, Changed: true}, nil
	}
	changed := merge(cur, func(x *rally.Person) {
		coalesce(&x.FullName, p.FullName)
		coalesce(&x.Nationality, p.Nationality)
		coalesce(&x.ExternalID, p.ExternalID)
	})
	return rally.UpsertResult{ID: cur.ID, Changed: changed}, nil
}

// FindPersonByExternalID looks a person up by the official API id.
func (s *Store) FindPersonByExternalID(_ context.Context, role rally.Role, externalID int64) (rally.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.people[role] {
		if p.ExternalID != nil && *p.ExternalID == externalID {
			return *p, nil
		}
	}
	return rally.Person{}, fmt.Errorf("%s with external id %d: %w", role, externalID, rally.ErrNotFound)
}

// ListPeople returns every person of role sorted by name.
func (s *Store) ListPeople(_ context.Context, role rally.Role) ([]rally.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rally.Person, 0, len(s.people[role]))
	for _, p := range s.people[role] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertManufacturer merges a manufacturer by canonical name.
func (s *Store) UpsertManufacturer(_ context.Context, m rally.Manufacturer) (rally.UpsertResult, error) {
	if m.Name == "" {
		return rally.UpsertResult{}, fmt.Errorf("upsert manufacturer: name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.manufacturers[m.Name]
	if !ok {
		m.ID = s.newIDLocked()
		s.manufacturers[m.Name] = &m
		return rally.UpsertResult{ID: m.ID, Inserted: true, Changed: true}, nil
	}
	changed := merge(cur, func(x *rally.Manufacturer) {
		coalesce(&x.FullName, m.FullName)
		coalesce(&x.Nationality, m.Nationality)
		coalesce(&x.LogoURL, m.LogoURL)
	})
	return rally.UpsertResult{ID: cur.ID, Changed: changed}, nil
}

// UpsertCrew merges a crew by (rally, driver).
func (s *Store) UpsertCrew(_ context.Context, c rally.Crew) (rally.UpsertResult, error) {
	if c.RallyID == 0 || c.DriverID == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert crew: rally and driver are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := crewKey{c.RallyID, c.DriverID}
	cur, ok := s.crews[key]
	if !ok {
		c.ID = s.newIDLocked()
		s.crews[key] = &c
		return rally.UpsertResult{ID: c.ID, Inserted: true, Changed: true}, nil
	}
	changed := merge(cur, func(x *rally.Crew) {
		coalesce(&x.CodriverID, c.CodriverID)
		coalesce(&x.ManufacturerID, c.ManufacturerID)
		coalesce(&x.CarNumber, c.CarNumber)
		coalesce(&x.CarClass, c.CarClass)
		coalesce(&x.TeamName, c.TeamName)
		coalesce(&x.Status, c.Status)
	})
	return rally.UpsertResult{ID: cur.ID, Changed: changed}, nil
}

// ListCrews returns the lookup projection of a rally's crews.
func (s *Store) ListCrews(_ context.Context, rallyID int64) ([]rally.CrewRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rally.CrewRef
	for _, c := range s.crews {
		if c.RallyID != rallyID {
			continue
		}
		ref := rally.CrewRef{CrewID: c.ID, DriverID: c.DriverID, CarNumber: c.CarNumber}
		if d := s.personByIDLocked(rally.RoleDriver, c.DriverID); d != nil {
			ref.DriverName = d.Name
			ref.DriverExternalID = d.ExternalID
		}
		if c.ManufacturerID != nil {
			if m := s.manufacturerByIDLocked(*c.ManufacturerID); m != nil {
				ref.Manufacturer = rally.Ptr(m.Name)
			}
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CrewID < out[j].CrewID })
	return out, nil
}

// SeasonManufacturers maps each driver to the manufacturer of their latest
// crew in the season.
func (s *Store) SeasonManufacturers(_ context.Context, season int) (map[int64]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rounds := make(map[int64]int)
	for _, r := range s.rallies {
		if r.Season == season {
			rounds[r.ID] = r.Round
		}
	}
	latest := make(map[int64]int)
	out := make(map[int64]string)
	for _, c := range s.crews {
		round, ok := rounds[c.RallyID]
		if !ok || c.ManufacturerID == nil || round < latest[c.DriverID] {
			continue
		}
		m := s.manufacturerByIDLocked(*c.ManufacturerID)
		if m == nil {
			continue
		}
		latest[c.DriverID] = round
		out[c.DriverID] = m.Name
	}
	return out, nil
}

// UpsertOverallResult merges a final classification by (rally, crew).
// Position and status always overwrite; points only when Scored.
func (s *Store) UpsertOverallResult(_ context.Context, r rally.OverallResult) (rally.UpsertResult, error) {
	if r.RallyID == 0 || r.CrewID == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert overall result: rally and crew are required")
	}
	if r.Status == "" {
		r.Status = rally.ResultStatusFor(r.Position)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{r.RallyID, r.CrewID}
	cur, ok := s.overall[key]
	if !ok {
		if !r.Scored {
			r.Points = rally.Points{}
		}
		r.Scored = false
		s.overall[key] = &r
		return rally.UpsertResult{ID: r.CrewID, Inserted: true, Changed: true}, nil
	}
	changed := merge(cur, func(x *rally.OverallResult) {
		x.Position = r.Position
		x.Status = r.Status
		coalesce(&x.TotalTimeMS, r.TotalTimeMS)
		coalesce(&x.GapFirstMS, r.GapFirstMS)
		coalesce(&x.RetirementReason, r.RetirementReason)
		if r.Scored {
			x.Points = r.Points
		}
	})
	return rally.UpsertResult{ID: cur.CrewID, Changed: changed}, nil
}

// ListOverallResults returns a rally's classification, retired crews last.
func (s *Store) ListOverallResults(_ context.Context, rallyID int64) ([]rally.OverallResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rally.OverallResult
	for _, r := range s.overall {
		if r.RallyID == rallyID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Position, out[j].Position
		switch {
		case pi != nil && pj != nil && *pi != *pj:
			return *pi < *pj
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		default:
			return out[i].CrewID < out[j].CrewID
		}
	})
	return out, nil
}

// UpsertStageResult merges a stage time by (stage, crew). Positions always
// overwrite; everything else coalesces.
func (s *Store) UpsertStageResult(_ context.Context, r rally.StageResult) (rally.UpsertResult, error) {
	if r.StageID == 0 || r.CrewID == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert stage result: stage and crew are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{r.StageID, r.CrewID}
	cur, ok := s.stageResults[key]
	if !ok {
		s.stageResults[key] = &r
		return rally.UpsertResult{ID: r.CrewID, Inserted: true, Changed: true}, nil
	}
	changed := merge(cur, func(x *rally.StageResult) {
		x.StagePosition = r.StagePosition
		x.OverallPosition = r.OverallPosition
		coalesce(&x.StageTimeMS, r.StageTimeMS)
		coalesce(&x.OverallTimeMS, r.OverallTimeMS)
		coalesce(&x.GapFirstMS, r.GapFirstMS)
		coalesce(&x.GapPrevMS, r.GapPrevMS)
		coalesce(&x.PenaltyMS, r.PenaltyMS)
		coalesce(&x.PenaltyReason, r.PenaltyReason)
	})
	return rally.UpsertResult{ID: cur.CrewID, Changed: changed}, nil
}

// StageResults returns the stored results of one stage ordered by crew.
func (s *Store) StageResults(stageID int64) []rally.StageResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rally.StageResult
	for _, r := range s.stageResults {
		if r.StageID == stageID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CrewID < out[j].CrewID })
	return out
}

// ReplaceStandings swaps a season's standings for the given rows.
func (s *Store) ReplaceStandings(
	_ context.Context,
	season int,
	drivers []rally.DriverStanding,
	makers []rally.ManufacturerStanding,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driverStandings[season] = append([]rally.DriverStanding(nil), drivers...)
	s.makerStandings[season] = append([]rally.ManufacturerStanding(nil), makers...)
	return nil
}

// Standings returns the stored standings of a season.
func (s *Store) Standings(season int) ([]rally.DriverStanding, []rally.ManufacturerStanding) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]rally.DriverStanding(nil), s.driverStandings[season]...),
		append([]rally.ManufacturerStanding(nil), s.makerStandings[season]...)
}

// RecomputeCareerStats rebuilds every driver's career aggregates from crews
// and overall results and reports how many drivers have at least one start.
func (s *Store) RecomputeCareerStats(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[int64]*rally.CareerStats)
	for _, c := range s.crews {
		st, ok := stats[c.DriverID]
		if !ok {
			st = &rally.CareerStats{}
			stats[c.DriverID] = st
		}
		st.Starts++
		res, ok := s.overall[resultKey{c.RallyID, c.ID}]
		if !ok {
			continue
		}
		if res.Position != nil {
			if *res.Position == 1 {
				st.Wins++
			}
			if *res.Position <= 3 {
				st.Podiums++
			}
		}
		st.Points += res.Points.Total
	}

	updated := 0
	for _, p := range s.people[rally.RoleDriver] {
		if st, ok := stats[p.ID]; ok {
			p.Career = *st
			updated++
		}
	}
	return updated, nil
}

// Close is a no-op.
func (s *Store) Close() {}

func (s *Store) personByIDLocked(role rally.Role, id int64) *rally.Person {
	for _, p := range s.people[role] {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Store) manufacturerByIDLocked(id int64) *rally.Manufacturer {
	for _, m := range s.manufacturers {
		if m.ID == id {
			return m
		}
	}
	return nil
}
