package aggregator

import (
	"strings"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/resolve"
)

// FilterClass keeps the results registered in class.
func FilterClass(results []Result, class string) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.InClass(class) {
			out = append(out, r)
		}
	}
	return out
}

// MapRally builds the completed rally for ev, enriched with the page's
// event header when one was found.
func MapRally(ev Event, detail *EventDetail) rally.Rally {
	r := rally.Rally{
		Season:       ev.Season,
		Round:        ev.Round,
		Name:         ev.Name,
		OfficialName: rally.StringPtr(ev.Name),
		Status:       rally.StatusCompleted,
	}
	if detail == nil {
		return r
	}
	if name := strings.TrimSpace(detail.Name); name != "" {
		r.OfficialName = &name
	}
	r.Country = rally.StringPtr(strings.TrimSpace(detail.Country.Name.EN))
	r.Surface = rally.StringPtr(strings.TrimSpace(detail.Surface.EN))
	r.StartDate = parseDate(detail.FromDate)
	r.EndDate = parseDate(detail.UntilDate)
	return r
}

func mapPerson(p Person) (rally.Person, bool) {
	name := resolve.ShortName(p.FirstName, p.LastName)
	if name == "" {
		return rally.Person{}, false
	}
	out := rally.Person{
		Name:     name,
		FullName: rally.StringPtr(strings.TrimSpace(p.FirstName + " " + p.LastName)),
	}
	if p.Flag != "" {
		out.Nationality = rally.Ptr(resolve.NationalityFromCode(p.Flag))
	}
	return out, true
}

// MapEntry converts a result row into an entry. The boolean is false when
// the row names no driver.
func MapEntry(r Result, class string) (rally.Entry, bool) {
	driver, ok := mapPerson(r.Driver)
	if !ok {
		return rally.Entry{}, false
	}
	entry := rally.Entry{
		Driver:       driver,
		Manufacturer: strings.TrimSpace(r.Team.Name),
		TeamName:     rally.StringPtr(strings.TrimSpace(r.Team.Name)),
		CarClass:     rally.StringPtr(class),
		Status:       rally.Ptr(string(rally.ResultStatusFor(position(r)))),
	}
	if codriver, ok := mapPerson(r.Codriver); ok {
		entry.Codriver = &codriver
	}
	if r.StartNumber > 0 {
		entry.CarNumber = rally.Ptr(r.StartNumber)
	}
	return entry, true
}

func position(r Result) *int {
	if r.Position <= 0 {
		return nil
	}
	return rally.Ptr(r.Position)
}

// MapOverall converts results into overall results aligned by index. The
// gap is measured against the fastest classified time of the set, so the
// class leader always gets zero.
func MapOverall(results []Result) []rally.OverallResult {
	times := make([]*int64, len(results))
	for i, r := range results {
		if r.Time.Raw > 0 && position(r) != nil {
			times[i] = rally.Ptr(r.Time.Raw)
		}
	}
	gaps := rally.LeaderGaps(times)

	out := make([]rally.OverallResult, len(results))
	for i, r := range results {
		pos := position(r)
		res := rally.OverallResult{
			Position:   pos,
			GapFirstMS: gaps[i],
			Status:     rally.ResultStatusFor(pos),
		}
		if r.Time.Raw > 0 {
			res.TotalTimeMS = rally.Ptr(r.Time.Raw)
		}
		out[i] = res
	}
	return out
}

// MapStages converts the itinerary, dropping rows without a stage number.
func MapStages(stages []Stage) []rally.Stage {
	out := make([]rally.Stage, 0, len(stages))
	for _, s := range stages {
		if s.Number <= 0 {
			continue
		}
		st := rally.Stage{
			Number:    s.Number,
			Name:      rally.StringPtr(strings.TrimSpace(s.Name)),
			Surface:   rally.StringPtr(s.Surface),
			Date:      parseDate(s.Date),
			StartTime: rally.StringPtr(s.StartTime),
		}
		if s.Length > 0 {
			st.DistanceKM = rally.Ptr(s.Length)
		}
		if s.Leg > 0 {
			st.Leg = rally.Ptr(s.Leg)
		}
		if s.Power {
			st.IsPowerStage = rally.Ptr(true)
		}
		out = append(out, st)
	}
	return out
}
