package rally

import "time"

// Status is the lifecycle state of a rally.
type Status string

const (
	// StatusUpcoming marks a rally created from the calendar that has no results yet.
	StatusUpcoming Status = "upcoming"
	// StatusCompleted marks a rally whose results were ingested.
	StatusCompleted Status = "completed"
)

// Advance returns the status that results from merging next into s.
// Completed never regresses to upcoming.
func (s Status) Advance(next Status) Status {
	switch {
	case s == StatusCompleted:
		return s
	case next != "":
		return next
	case s != "":
		return s
	default:
		return StatusUpcoming
	}
}

// ResultStatus is the classification of a crew at the end of a rally.
type ResultStatus string

const (
	// ResultFinished means the crew was classified.
	ResultFinished ResultStatus = "finished"
	// ResultRetired means the crew did not reach the finish.
	ResultRetired ResultStatus = "retired"
)

// ResultStatusFor classifies a result that carries no explicit status:
// a crew with a position finished, one without retired.
func ResultStatusFor(position *int) ResultStatus {
	if position != nil {
		return ResultFinished
	}
	return ResultRetired
}

// Role distinguishes the two person tables.
type Role string

const (
	// RoleDriver addresses drivers.
	RoleDriver Role = "driver"
	// RoleCodriver addresses codrivers.
	RoleCodriver Role = "codriver"
)

// Rally is one event of a season keyed by (Season, Round).
type Rally struct {
	ID           int64      `json:"id"`
	Season       int        `json:"season"`
	Round        int        `json:"round"`
	Name         string     `json:"name"`
	OfficialName *string    `json:"officialName,omitempty"`
	Country      *string    `json:"country,omitempty"`
	Surface      *string    `json:"surface,omitempty"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	TotalStages  *int       `json:"totalStages,omitempty"`
	Status       Status     `json:"status"`
	EventID      *int64     `json:"eventId,omitempty"`
}

// Stage is one timed segment keyed by (RallyID, Number).
type Stage struct {
	ID           int64      `json:"id"`
	RallyID      int64      `json:"rallyId"`
	Number       int        `json:"number"`
	Name         *string    `json:"name,omitempty"`
	DistanceKM   *float64   `json:"distanceKm,omitempty"`
	Surface      *string    `json:"surface,omitempty"`
	IsPowerStage *bool      `json:"isPowerStage,omitempty"`
	Leg          *int       `json:"leg,omitempty"`
	Date         *time.Time `json:"date,omitempty"`
	StartTime    *string    `json:"startTime,omitempty"`
}

// CareerStats are recomputed aggregates, never maintained incrementally.
type CareerStats struct {
	Starts  int `json:"starts"`
	Wins    int `json:"wins"`
	Podiums int `json:"podiums"`
	Points  int `json:"points"`
}

// Person is a driver or codriver keyed by the normalized "Surname I." name.
type Person struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	FullName    *string     `json:"fullName,omitempty"`
	Nationality *string     `json:"nationality,omitempty"`
	ExternalID  *int64      `json:"externalId,omitempty"`
	Career      CareerStats `json:"career"`
}

// Manufacturer is keyed by its canonical short name.
type Manufacturer struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	FullName    *string `json:"fullName,omitempty"`
	Nationality *string `json:"nationality,omitempty"`
	LogoURL     *string `json:"logoUrl,omitempty"`
}

// Crew is one driver's entry in one rally keyed by (RallyID, DriverID).
type Crew struct {
	ID             int64   `json:"id"`
	RallyID        int64   `json:"rallyId"`
	DriverID       int64   `json:"driverId"`
	CodriverID     *int64  `json:"codriverId,omitempty"`
	ManufacturerID *int64  `json:"manufacturerId,omitempty"`
	CarNumber      *int    `json:"carNumber,omitempty"`
	CarClass       *string `json:"carClass,omitempty"`
	TeamName       *string `json:"teamName,omitempty"`
	Status         *string `json:"status,omitempty"`
}

// CrewRef is the lookup projection used to match result rows to crews.
type CrewRef struct {
	CrewID           int64
	DriverID         int64
	DriverName       string
	DriverExternalID *int64
	CarNumber        *int
	Manufacturer     *string
}

// Entry is one car of an entry list before identities are assigned. The
// manufacturer is the raw team or marque string as the source spells it.
type Entry struct {
	Driver                  Person
	Codriver                *Person
	Manufacturer            string
	ManufacturerFullName    *string
	ManufacturerNationality *string
	CarNumber               *int
	CarClass                *string
	TeamName                *string
	Status                  *string
}

// Points splits a result's championship points.
type Points struct {
	Overall     int `json:"overall"`
	PowerStage  int `json:"powerStage"`
	SuperSunday int `json:"superSunday"`
	Total       int `json:"total"`
}

// OverallResult is a crew's final classification keyed by (RallyID, CrewID).
type OverallResult struct {
	RallyID          int64        `json:"rallyId"`
	CrewID           int64        `json:"crewId"`
	Position         *int         `json:"position,omitempty"`
	TotalTimeMS      *int64       `json:"totalTimeMs,omitempty"`
	GapFirstMS       *int64       `json:"gapFirstMs,omitempty"`
	Points           Points       `json:"points"`
	Scored           bool         `json:"-"`
	Status           ResultStatus `json:"status"`
	RetirementReason *string      `json:"retirementReason,omitempty"`
}

// StageResult is a crew's time on one stage keyed by (StageID, CrewID).
type StageResult struct {
	StageID         int64   `json:"stageId"`
	CrewID          int64   `json:"crewId"`
	StagePosition   *int    `json:"stagePosition,omitempty"`
	StageTimeMS     *int64  `json:"stageTimeMs,omitempty"`
	OverallPosition *int    `json:"overallPosition,omitempty"`
	OverallTimeMS   *int64  `json:"overallTimeMs,omitempty"`
	GapFirstMS      *int64  `json:"gapFirstMs,omitempty"`
	GapPrevMS       *int64  `json:"gapPrevMs,omitempty"`
	PenaltyMS       *int64  `json:"penaltyMs,omitempty"`
	PenaltyReason   *string `json:"penaltyReason,omitempty"`
}

// DriverStanding is one row of a season's drivers' championship.
type DriverStanding struct {
	Season       int     `json:"season"`
	Position     int     `json:"position"`
	DriverID     int64   `json:"driverId"`
	Manufacturer *string `json:"manufacturer,omitempty"`
	Points       int     `json:"points"`
	Wins         *int    `json:"wins,omitempty"`
	Podiums      *int    `json:"podiums,omitempty"`
	StageWins    *int    `json:"stageWins,omitempty"`
}

// ManufacturerStanding is one row of a season's manufacturers' championship.
type ManufacturerStanding struct {
	Season         int   `json:"season"`
	Position       int   `json:"position"`
	ManufacturerID int64 `json:"manufacturerId"`
	Points         int   `json:"points"`
	Wins           *int  `json:"wins,omitempty"`
	Podiums        *int  `json:"podiums,omitempty"`
}

// UpsertResult reports what a single merge did.
type UpsertResult struct {
	ID       int64
	Inserted bool
	Changed  bool
}

// Touched reports whether the merge wrote anything.
func (r UpsertResult) Touched() bool {
	return r.Inserted || r.Changed
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
