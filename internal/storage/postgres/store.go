// Package postgres implements rally.Store on a pgx connection pool. Every
// upsert is one statement that inserts or merges by natural key.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses, so pgxmock can stand in.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store is the Postgres rally.Store.
type Store struct {
	pool pool
}

var _ rally.Store = (*Store)(nil)

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, plan upsertPlan, args ...any) (rally.UpsertResult, error) {
	var res rally.UpsertResult
	if err := s.pool.QueryRow(ctx, plan.sql(), args...).Scan(&res.ID, &res.Inserted, &res.Changed); err != nil {
		return rally.UpsertResult{}, fmt.Errorf("upsert %s: %w", plan.table, err)
	}
	return res, nil
}

// UpsertRally merges a rally by (season, round). A completed rally stays completed.
func (s *Store) UpsertRally(ctx context.Context, r rally.Rally) (rally.UpsertResult, error) {
	if r.Season == 0 || r.Round == 0 || r.Name == "" {
		return rally.UpsertResult{}, fmt.Errorf("upsert rally: season, round and name are required")
	}
	return s.upsert(ctx, rallyUpsert,
		r.Season, r.Round, r.Name, r.OfficialName, r.Country, r.Surface,
		r.StartDate, r.EndDate, r.TotalStages, string(rally.Status("").Advance(r.Status)), r.EventID,
	)
}

const rallyColumns = `id, season, round, name, official_name, country, surface,
	start_date, end_date, total_stages, status, event_id`

func scanRally(row pgx.Row) (rally.Rally, error) {
	var (
		r      rally.Rally
		status string
	)
	err := row.Scan(&r.ID, &r.Season, &r.Round, &r.Name, &r.OfficialName, &r.Country, &r.Surface,
		&r.StartDate, &r.EndDate, &r.TotalStages, &status, &r.EventID)
	r.Status = rally.Status(status)
	return r, err
}

func (s *Store) findRally(ctx context.Context, what, query string, args ...any) (rally.Rally, error) {
	r, err := scanRally(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return rally.Rally{}, fmt.Errorf("rally %s: %w", what, rally.ErrNotFound)
	}
	if err != nil {
		return rally.Rally{}, fmt.Errorf("find rally %s: %w", what, err)
	}
	return r, nil
}

// FindRallyByEventID returns the rally carrying the external event id.
func (s *Store) FindRallyByEventID(ctx context.Context, eventID int64) (rally.Rally, error) {
	return s.findRally(ctx, fmt.Sprintf("with event id %d", eventID),
		`SELECT `+rallyColumns+` FROM rallies WHERE event_id = $1 ORDER BY season DESC LIMIT 1`, eventID)
}

// FindRally returns the rally at (season, round).
func (s *Store) FindRally(ctx context.Context, season, round int) (rally.Rally, error) {
	return s.findRally(ctx, fmt.Sprintf("%d round %d", season, round),
		`SELECT `+rallyColumns+` FROM rallies WHERE season = $1 AND round = $2`, season, round)
}

// ListRallies returns a season's rallies in round order.
func (s *Store) ListRallies(ctx context.Context, season int) ([]rally.Rally, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rallyColumns+` FROM rallies WHERE season = $1 ORDER BY round`, season)
	if err != nil {
		return nil, fmt.Errorf("list rallies: %w", err)
	}
	defer rows.Close()
	var out []rally.Rally
	for rows.Next() {
		r, err := scanRally(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rally: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertStage merges a stage by (rally, number).
func (s *Store) UpsertStage(ctx context.Context, st rally.Stage) (rally.UpsertResult, error) {
	if st.RallyID == 0 || st.Number == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert stage: rally and number are required")
	}
	return s.upsert(ctx, stageUpsert,
		st.RallyID, st.Number, st.Name, st.DistanceKM, st.Surface,
		st.IsPowerStage, st.Leg, st.Date, st.StartTime,
	)
}

// ListStages returns a rally's stages in number order.
func (s *Store) ListStages(ctx context.Context, rallyID int64) ([]rally.Stage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rally_id, stage_number, name, distance_km, surface, is_power_stage, leg, stage_date, start_time
		FROM stages WHERE rally_id = $1 ORDER BY stage_number`, rallyID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()
	var out []rally.Stage
	for rows.Next() {
		var st rally.Stage
		if err := rows.Scan(&st.ID, &st.RallyID, &st.Number, &st.Name, &st.DistanceKM, &st.Surface,
			&st.IsPowerStage, &st.Leg, &st.Date, &st.StartTime); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func personTable(role rally.Role) (string, error) {
	switch role {
	case rally.RoleDriver:
		return "drivers", nil
	case rally.RoleCodriver:
		return "codrivers", nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

// UpsertPerson merges a driver or codriver by name.
func (s *Store) UpsertPerson(ctx context.Context, role rally.Role, p rally.Person) (rally.UpsertResult, error) {
	table, err := personTable(role)
	if err != nil {
		return rally.UpsertResult{}, fmt.Errorf("upsert person: %w", err)
	}
	if p.Name == "" {
		return rally.UpsertResult{}, fmt.Errorf("upsert %s: name is required", role)
	}
	return s.upsert(ctx, personUpsert(table), p.Name, p.FullName, p.Nationality, p.ExternalID)
}

const personColumns = `id, name, full_name, nationality, external_id,
	career_starts, career_wins, career_podiums, career_points`

func scanPerson(row pgx.Row) (rally.Person, error) {
	var p rally.Person
	err := row.Scan(&p.ID, &p.Name, &p.FullName, &p.Nationality, &p.ExternalID,
		&p.Career.Starts, &p.Career.Wins, &p.Career.Podiums, &p.Career.Points)
	return p, err
}

// FindPersonByExternalID looks a person up by the official API id.
func (s *Store) FindPersonByExternalID(ctx context.Context, role rally.Role, externalID int64) (rally.Person, error) {
	table, err := personTable(role)
	if err != nil {
		return rally.Person{}, err
	}
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM `+table+` WHERE external_id = $1 ORDER BY id LIMIT 1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return rally.Person{}, fmt.Errorf("%s with external id %d: %w", role, externalID, rally.ErrNotFound)
	}
	if err != nil {
		return rally.Person{}, fmt.Errorf("find %s: %w", role, err)
	}
	return p, nil
}

// ListPeople returns every person of role sorted by name.
func (s *Store) ListPeople(ctx context.Context, role rally.Role) ([]rally.Person, error) {
	table, err := personTable(role)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+personColumns+` FROM `+table+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	var out []rally.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", role, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertManufacturer merges a manufacturer by canonical name.
func (s *Store) UpsertManufacturer(ctx context.Context, m rally.Manufacturer) (rally.UpsertResult, error) {
	if m.Name == "" {
		return rally.UpsertResult{}, fmt.Errorf("upsert manufacturer: name is required")
	}
	return s.upsert(ctx, manufacturerUpsert, m.Name, m.FullName, m.Nationality, m.LogoURL)
}

// UpsertCrew merges a crew by (rally, driver).
func (s *Store) UpsertCrew(ctx context.Context, c rally.Crew) (rally.UpsertResult, error) {
	if c.RallyID == 0 || c.DriverID == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert crew: rally and driver are required")
	}
	return s.upsert(ctx, crewUpsert,
		c.RallyID, c.DriverID, c.CodriverID, c.ManufacturerID,
		c.CarNumber, c.CarClass, c.TeamName, c.Status,
	)
}

// ListCrews returns the lookup projection of a rally's crews.
func (s *Store) ListCrews(ctx context.Context, rallyID int64) ([]rally.CrewRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.driver_id, d.name, d.external_id, c.car_number, m.name
		FROM crews c
		JOIN drivers d ON d.id = c.driver_id
		LEFT JOIN manufacturers m ON m.id = c.manufacturer_id
		WHERE c.rally_id = $1
		ORDER BY c.id`, rallyID)
	if err != nil {
		return nil, fmt.Errorf("list crews: %w", err)
	}
	defer rows.Close()
	var out []rally.CrewRef
	for rows.Next() {
		var ref rally.CrewRef
		if err := rows.Scan(&ref.CrewID, &ref.DriverID, &ref.DriverName, &ref.DriverExternalID,
			&ref.CarNumber, &ref.Manufacturer); err != nil {
			return nil, fmt.Errorf("scan crew: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// SeasonManufacturers maps each driver to the manufacturer of their latest
// crew in the season.
func (s *Store) SeasonManufacturers(ctx context.Context, season int) (map[int64]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (c.driver_id) c.driver_id, m.name
		FROM crews c
		JOIN rallies r ON r.id = c.rally_id
		JOIN manufacturers m ON m.id = c.manufacturer_id
		WHERE r.season = $1
		ORDER BY c.driver_id, r.round DESC`, season)
	if err != nil {
		return nil, fmt.Errorf("season manufacturers: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]string)
	for rows.Next() {
		var (
			driverID int64
			name     string
		)
		if err := rows.Scan(&driverID, &name); err != nil {
			return nil, fmt.Errorf("scan season manufacturer: %w", err)
		}
		out[driverID] = name
	}
	return out, rows.Err()
}

// UpsertOverallResult merges a final classification by (rally, crew).
// Position and status always overwrite; points only when Scored.
func (s *Store) UpsertOverallResult(ctx context.Context, r rally.OverallResult) (rally.UpsertResult, error) {
	if r.RallyID == 0 || r.CrewID == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert overall result: rally and crew are required")
	}
	status := r.Status
	if status == "" {
		status = rally.ResultStatusFor(r.Position)
	}
	var overall, power, sunday, total *int
	if r.Scored {
		overall, power, sunday, total = &r.Points.Overall, &r.Points.PowerStage, &r.Points.SuperSunday, &r.Points.Total
	}
	return s.upsert(ctx, overallUpsert,
		r.RallyID, r.CrewID, r.Position, r.TotalTimeMS, r.GapFirstMS,
		overall, power, sunday, total, string(status), r.RetirementReason,
	)
}

// ListOverallResults returns a rally's classification, retired crews last.
func (s *Store) ListOverallResults(ctx context.Context, rallyID int64) ([]rally.OverallResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rally_id, crew_id, position, total_time_ms, gap_first_ms,
			COALESCE(points_overall, 0), COALESCE(points_power_stage, 0),
			COALESCE(points_super_sunday, 0), COALESCE(points_total, 0),
			status, retirement_reason
		FROM overall_results
		WHERE rally_id = $1
		ORDER BY position NULLS LAST, crew_id`, rallyID)
	if err != nil {
		return nil, fmt.Errorf("list overall results: %w", err)
	}
	defer rows.Close()
	var out []rally.OverallResult
	for rows.Next() {
		var (
			r      rally.OverallResult
			status string
		)
		if err := rows.Scan(&r.RallyID, &r.CrewID, &r.Position, &r.TotalTimeMS, &r.GapFirstMS,
			&r.Points.Overall, &r.Points.PowerStage, &r.Points.SuperSunday, &r.Points.Total,
			&status, &r.RetirementReason); err != nil {
			return nil, fmt.Errorf("scan overall result: %w", err)
		}
		r.Status = rally.ResultStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertStageResult merges a stage time by (stage, crew).
func (s *Store) UpsertStageResult(ctx context.Context, r rally.StageResult) (rally.UpsertResult, error) {
	if r.StageID == 0 || r.CrewID == 0 {
		return rally.UpsertResult{}, fmt.Errorf("upsert stage result: stage and crew are required")
	}
	return s.upsert(ctx, stageResultUpsert,
		r.StageID, r.CrewID, r.StagePosition, r.StageTimeMS, r.OverallPosition,
		r.OverallTimeMS, r.GapFirstMS, r.GapPrevMS, r.PenaltyMS, r.PenaltyReason,
	)
}

// ReplaceStandings deletes and re-inserts a season's standings in one transaction.
func (s *Store) ReplaceStandings(
	ctx context.Context,
	season int,
	drivers []rally.DriverStanding,
	makers []rally.ManufacturerStanding,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin standings: %w", err)
	}
	if err := replaceStandings(ctx, tx, season, drivers, makers); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit standings: %w", err)
	}
	return nil
}

func replaceStandings(
	ctx context.Context,
	tx pgx.Tx,
	season int,
	drivers []rally.DriverStanding,
	makers []rally.ManufacturerStanding,
) error {
	if _, err := tx.Exec(ctx, `DELETE FROM driver_standings WHERE season = $1`, season); err != nil {
		return fmt.Errorf("clear driver standings: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM manufacturer_standings WHERE season = $1`, season); err != nil {
		return fmt.Errorf("clear manufacturer standings: %w", err)
	}
	for _, d := range drivers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO driver_standings (season, driver_id, position, manufacturer, points, wins, podiums, stage_wins)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			season, d.DriverID, d.Position, d.Manufacturer, d.Points, d.Wins, d.Podiums, d.StageWins,
		); err != nil {
			return fmt.Errorf("insert driver standing %d: %w", d.DriverID, err)
		}
	}
	for _, m := range makers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO manufacturer_standings (season, manufacturer_id, position, points, wins, podiums)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			season, m.ManufacturerID, m.Position, m.Points, m.Wins, m.Podiums,
		); err != nil {
			return fmt.Errorf("insert manufacturer standing %d: %w", m.ManufacturerID, err)
		}
	}
	return nil
}

// RecomputeCareerStats rebuilds every driver's career aggregates from crews
// and overall results and reports how many drivers were updated.
func (s *Store) RecomputeCareerStats(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE drivers SET
			career_starts = stats.starts,
			career_wins = stats.wins,
			career_podiums = stats.podiums,
			career_points = stats.points,
			updated_at = now()
		FROM (
			SELECT
				c.driver_id,
				COUNT(DISTINCT c.rally_id) AS starts,
				COUNT(*) FILTER (WHERE o.position = 1) AS wins,
				COUNT(*) FILTER (WHERE o.position BETWEEN 1 AND 3) AS podiums,
				COALESCE(SUM(o.points_total), 0) AS points
			FROM crews c
			LEFT JOIN overall_results o ON o.crew_id = c.id AND o.rally_id = c.rally_id
			GROUP BY c.driver_id
		) stats
		WHERE drivers.id = stats.driver_id`)
	if err != nil {
		return 0, fmt.Errorf("recompute career stats: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
