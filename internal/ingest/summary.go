package ingest

// StepError records a skipped step of a rally sync.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// RallyError records a rally that failed inside a season run.
type RallyError struct {
	Rally   string `json:"rally"`
	Round   int    `json:"round,omitempty"`
	EventID *int64 `json:"eventId,omitempty"`
	Error   string `json:"error"`
}

// CalendarSummary is the result of SyncCalendar.
type CalendarSummary struct {
	Season   int `json:"season,omitempty"`
	Upserted int `json:"upserted"`
	Changed  int `json:"changed"`
}

// RallySummary is the result of SyncRally.
type RallySummary struct {
	RallyID        int64       `json:"rallyId"`
	EventID        int64       `json:"eventId"`
	Name           string      `json:"name"`
	Stages         int         `json:"stages"`
	Crews          int         `json:"crews"`
	Filtered       int         `json:"filtered"`
	StageResults   int         `json:"stageResults"`
	OverallResults int         `json:"overallResults"`
	Penalties      int         `json:"penalties"`
	Retirements    int         `json:"retirements"`
	Skipped        int         `json:"skipped"`
	Changed        int         `json:"changed"`
	Errors         []StepError `json:"errors"`
}

// SeasonSummary is the result of SyncSeason.
type SeasonSummary struct {
	Season   int             `json:"season"`
	Calendar CalendarSummary `json:"calendar"`
	Rallies  []RallySummary  `json:"rallies"`
	Errors   []RallyError    `json:"errors"`
}

// ScrapeSummary is the result of ScrapeRally.
type ScrapeSummary struct {
	Rally   string      `json:"rally"`
	Season  int         `json:"season"`
	Round   int         `json:"round"`
	RallyID int64       `json:"rallyId"`
	Crews   int         `json:"crews"`
	Results int         `json:"results"`
	Stages  int         `json:"stages"`
	Skipped int         `json:"skipped"`
	Changed int         `json:"changed"`
	Errors  []StepError `json:"errors"`
}

// ScrapeSeasonSummary is the result of ScrapeSeason.
type ScrapeSeasonSummary struct {
	Season int             `json:"season"`
	Synced []ScrapeSummary `json:"synced"`
	Errors []RallyError    `json:"errors"`
}

// StandingsSummary is the result of ScrapeStandings.
type StandingsSummary struct {
	Season        int `json:"season"`
	Drivers       int `json:"drivers"`
	Manufacturers int `json:"manufacturers"`
	Duplicates    int `json:"duplicates,omitempty"`
}

// StatsSummary is the result of RecomputeDriverStats.
type StatsSummary struct {
	Updated int `json:"updated"`
}
