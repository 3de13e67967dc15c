package aggregator

import (
	"strings"
	"time"
)

// Person is a driver or codriver as the site embeds it.
type Person struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Flag      string `json:"flag"`
}

// Class is one competition class an entry is registered in.
type Class struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Result is one row of the final classification.
type Result struct {
	ID          int64 `json:"id"`
	StartNumber int   `json:"start_number"`
	Position    int   `json:"result"`
	SuperRally  int   `json:"superally"`
	Time        struct {
		Raw    int64  `json:"raw"`
		Pretty string `json:"pretty"`
	} `json:"time"`
	Driver   Person `json:"driver"`
	Codriver Person `json:"codriver"`
	Team     struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	Car struct {
		Name string `json:"name"`
	} `json:"car"`
	Classes      []Class  `json:"classes"`
	AverageSpeed *float64 `json:"average_speed,omitempty"`
}

// InClass reports whether the entry is registered in class.
func (r Result) InClass(class string) bool {
	for _, c := range r.Classes {
		if strings.EqualFold(c.Name, class) {
			return true
		}
	}
	return false
}

type localized struct {
	EN string `json:"en"`
}

// EventDetail is the event header embedded next to the results.
type EventDetail struct {
	ID            int64     `json:"id"`
	Season        int       `json:"season"`
	Name          string    `json:"name"`
	FromDate      string    `json:"from_date"`
	UntilDate     string    `json:"until_date"`
	Surface       localized `json:"surface"`
	Starters      int       `json:"starters"`
	Finishers     int       `json:"finishers"`
	TotalDistance float64   `json:"total_distance"`
	StageDistance string    `json:"stage_distance"`
	Country       struct {
		Name localized `json:"name"`
	} `json:"country"`
}

// Stage is one entry of the stage-results page itinerary.
type Stage struct {
	ID        int64   `json:"id"`
	Number    int     `json:"number"`
	Name      string  `json:"name"`
	Length    float64 `json:"length"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	Leg       int     `json:"leg"`
	Surface   string  `json:"surface"`
	Power     bool    `json:"power_stage"`
	Cancelled bool    `json:"cancelled"`
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
