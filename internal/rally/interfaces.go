package rally

import (
	"context"
	"time"
)

// Store is the upsert/merge engine. Every Upsert is a single atomic
// insert-or-merge addressed by the entity's natural key; descriptive fields
// coalesce, rally status only advances, positions and scored points overwrite.
type Store interface {
	UpsertRally(ctx context.Context, r Rally) (UpsertResult, error)
	FindRallyByEventID(ctx context.Context, eventID int64) (Rally, error)
	FindRally(ctx context.Context, season, round int) (Rally, error)
	ListRallies(ctx context.Context, season int) ([]Rally, error)

	UpsertStage(ctx context.Context, s Stage) (UpsertResult, error)
	ListStages(ctx context.Context, rallyID int64) ([]Stage, error)

	UpsertPerson(ctx context.Context, role Role, p Person) (UpsertResult, error)
	FindPersonByExternalID(ctx context.Context, role Role, externalID int64) (Person, error)
	ListPeople(ctx context.Context, role Role) ([]Person, error)

	UpsertManufacturer(ctx context.Context, m Manufacturer) (UpsertResult, error)

	UpsertCrew(ctx context.Context, c Crew) (UpsertResult, error)
	ListCrews(ctx context.Context, rallyID int64) ([]CrewRef, error)
	SeasonManufacturers(ctx context.Context, season int) (map[int64]string, error)

	UpsertOverallResult(ctx context.Context, r OverallResult) (UpsertResult, error)
	ListOverallResults(ctx context.Context, rallyID int64) ([]OverallResult, error)
	UpsertStageResult(ctx context.Context, r StageResult) (UpsertResult, error)

	ReplaceStandings(ctx context.Context, season int, drivers []DriverStanding, makers []ManufacturerStanding) error
	RecomputeCareerStats(ctx context.Context) (int, error)

	Close()
}

// Clock abstracts wall time so quota windows and pauses can be simulated.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Page is a fetched HTML document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// PageFetcher retrieves HTML documents from the scraped sources.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}
