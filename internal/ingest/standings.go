package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/resolve"
	"github.com/JakeFAU/rally-results-ingest/internal/source/standings"
)

// ScrapeStandings replaces the season's championship tables with the ones
// published on the standings page.
func (s *Service) ScrapeStandings(ctx context.Context, season int) (_ StandingsSummary, err error) {
	defer func() { metrics.ObserveRun("scrape_standings", err) }()

	season = s.season(season)
	t, err := s.standings.Fetch(ctx, season)
	if err != nil {
		return StandingsSummary{}, fmt.Errorf("scrape standings %d: %w", season, err)
	}
	resolver := resolve.NewResolver(s.store, s.logger)

	var duplicates int
	seenMakers := make(map[int64]bool)
	makers := make([]rally.ManufacturerStanding, 0, len(t.Manufacturers))
	for _, m := range standings.MapManufacturers(t.Manufacturers) {
		id, ok, err := resolver.Manufacturer(ctx, m.FullName, nil, m.Nationality)
		if err != nil {
			return StandingsSummary{}, fmt.Errorf("scrape standings %d: %w", season, err)
		}
		if !ok {
			continue
		}
		if seenMakers[id] {
			duplicates++
			s.logger.Warn("duplicate manufacturer standing dropped",
				zap.Int("season", season), zap.String("name", m.FullName), zap.Int("position", m.Position))
			continue
		}
		seenMakers[id] = true
		makers = append(makers, rally.ManufacturerStanding{
			Season:         season,
			Position:       m.Position,
			ManufacturerID: id,
			Points:         m.Points,
		})
	}

	crewMakers, err := s.store.SeasonManufacturers(ctx, season)
	if err != nil {
		return StandingsSummary{}, fmt.Errorf("scrape standings %d: %w", season, err)
	}
	seenDrivers := make(map[int64]bool)
	drivers := make([]rally.DriverStanding, 0, len(t.Drivers))
	for _, d := range standings.MapDrivers(t.Drivers) {
		res, err := resolver.Person(ctx, rally.RoleDriver, rally.Person{Name: d.Name, Nationality: d.Nationality})
		if err != nil {
			return StandingsSummary{}, fmt.Errorf("scrape standings %d: driver %q: %w", season, d.Printed, err)
		}
		if seenDrivers[res.ID] {
			duplicates++
			s.logger.Warn("duplicate driver standing dropped",
				zap.Int("season", season), zap.String("name", d.Printed), zap.Int("position", d.Position))
			continue
		}
		seenDrivers[res.ID] = true
		row := rally.DriverStanding{
			Season:   season,
			Position: d.Position,
			DriverID: res.ID,
			Points:   d.Points,
		}
		if label, ok := crewMakers[res.ID]; ok {
			row.Manufacturer = rally.Ptr(label)
		} else if label, ok := s.affiliations.Lookup(d.Name); ok {
			row.Manufacturer = rally.Ptr(label)
		}
		drivers = append(drivers, row)
	}

	if err := s.store.ReplaceStandings(ctx, season, drivers, makers); err != nil {
		return StandingsSummary{}, fmt.Errorf("scrape standings %d: %w", season, err)
	}
	metrics.ObserveRows("driver_standing", "replaced", len(drivers))
	metrics.ObserveRows("manufacturer_standing", "replaced", len(makers))
	s.logger.Info("standings scraped",
		zap.Int("season", season),
		zap.Int("drivers", len(drivers)),
		zap.Int("manufacturers", len(makers)),
		zap.Int("duplicates", duplicates),
	)
	return StandingsSummary{Season: season, Drivers: len(drivers), Manufacturers: len(makers), Duplicates: duplicates}, nil
}
