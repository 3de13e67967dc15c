package official

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/resolve"
)

// EntryRef identifies the crew a result row belongs to. Car numbers are
// tried first, then the driver's external id.
type EntryRef struct {
	CarNumbers       []int
	DriverExternalID *int64
}

// Resolve finds the crew referenced by e in crews.
func (e EntryRef) Resolve(crews []rally.CrewRef) (rally.CrewRef, bool) {
	for _, n := range e.CarNumbers {
		for _, c := range crews {
			if c.CarNumber != nil && *c.CarNumber == n {
				return c, true
			}
		}
	}
	if e.DriverExternalID != nil {
		for _, c := range crews {
			if c.DriverExternalID != nil && *c.DriverExternalID == *e.DriverExternalID {
				return c, true
			}
		}
	}
	return rally.CrewRef{}, false
}

func entryRef(obj map[string]any) EntryRef {
	var ref EntryRef
	for _, k := range []string{"carNo", "number", "entryId"} {
		if n := integer(obj, k); n != nil {
			ref.CarNumbers = append(ref.CarNumbers, *n)
		}
	}
	ref.DriverExternalID = id64(obj, "driverId")
	if ref.DriverExternalID == nil {
		ref.DriverExternalID = id64(asObject(obj["driver"]), "personId", "id")
	}
	return ref
}

// MapCalendar turns the active-season items into rallies. Events without a
// season (neither requested nor derivable from a date) are dropped.
func MapCalendar(items []any, season int) []rally.Rally {
	out := make([]rally.Rally, 0, len(items))
	for i, item := range items {
		ev := asObject(item)
		if ev == nil {
			continue
		}
		start := date(ev, "startDate", "date")
		s := season
		if s == 0 && start != nil {
			s = start.Year()
		}
		if s == 0 {
			continue
		}
		round := integer(ev, "round", "order", "index")
		if round == nil {
			round = rally.Ptr(i + 1)
		}
		name := text(ev, "name", "eventName")
		if name == nil {
			name = rally.Ptr("Unknown Rally")
		}
		official := text(ev, "officialName", "fullName")
		if official == nil {
			official = name
		}
		country := text(ev, "country")
		if country == nil {
			country = text(ev, "countryName")
		}
		out = append(out, rally.Rally{
			Season:       s,
			Round:        *round,
			Name:         *name,
			OfficialName: official,
			Country:      country,
			Surface:      text(ev, "surface"),
			StartDate:    start,
			EndDate:      date(ev, "endDate"),
			TotalStages:  integer(ev, "totalStages"),
			Status:       rally.StatusUpcoming,
			EventID:      id64(ev, "id", "eventId"),
		})
	}
	return out
}

// StageRecord is a stage plus the identifier the stage-times endpoint expects.
type StageRecord struct {
	Stage      rally.Stage
	ExternalID string
}

// MapItinerary flattens legs, sections and stages.
func MapItinerary(v any) []StageRecord {
	var out []StageRecord
	for _, l := range listAt(v, "itineraryLegs", "legs") {
		leg := asObject(l)
		var legNumber *int
		if text(leg, "legDate") != nil {
			legNumber = integer(leg, "order", "legId")
		}
		for _, sec := range listAt(leg, "itinerarySections", "sections") {
			for _, st := range listAt(sec, "stages", "controls") {
				stage := asObject(st)
				num := integer(stage, "number", "stageNumber")
				extID := text(stage, "stageId")
				if num == nil && extID != nil {
					if n, err := strconv.Atoi(*extID); err == nil {
						num = &n
					}
				}
				if num == nil {
					continue
				}
				name := text(stage, "name", "stageName")
				if name == nil {
					name = rally.Ptr(fmt.Sprintf("SS%d", *num))
				}
				stageDate := date(stage, "date")
				if stageDate == nil {
					stageDate = date(leg, "legDate")
				}
				rec := StageRecord{
					Stage: rally.Stage{
						Number:       *num,
						Name:         name,
						DistanceKM:   number(stage, "distance", "length"),
						Surface:      text(stage, "surface"),
						IsPowerStage: flag(stage, "powerStage", "isPowerStage"),
						Leg:          legNumber,
						Date:         stageDate,
						StartTime:    text(stage, "startTime"),
					},
					ExternalID: strconv.Itoa(*num),
				}
				if extID != nil {
					rec.ExternalID = *extID
				}
				out = append(out, rec)
			}
		}
	}
	return out
}

func mapPerson(obj map[string]any) (rally.Person, bool) {
	firstName := text(obj, "firstName", "firstname")
	lastName := text(obj, "lastName", "lastname")
	var fn, ln string
	if firstName != nil {
		fn = *firstName
	}
	if lastName != nil {
		ln = *lastName
	}
	name := resolve.ShortName(fn, ln)
	if name == "" {
		return rally.Person{}, false
	}
	full := text(obj, "fullName")
	if full == nil {
		full = rally.StringPtr(strings.TrimSpace(fn + " " + ln))
	}
	nationality := text(obj, "nationality", "country")
	if nationality != nil && len(*nationality) == 2 {
		nationality = rally.Ptr(resolve.NationalityFromCode(*nationality))
	}
	return rally.Person{
		Name:        name,
		FullName:    full,
		Nationality: nationality,
		ExternalID:  id64(obj, "personId", "id"),
	}, true
}

// MapEntries reads the entry list. Cars without a named driver are dropped.
func MapEntries(v any) []rally.Entry {
	var out []rally.Entry
	for _, e := range listAt(v, "entries") {
		entry := asObject(e)
		driver, ok := mapPerson(asObject(entry["driver"]))
		if !ok {
			continue
		}
		rec := rally.Entry{Driver: driver}
		codriverObj := asObject(entry["coDriver"])
		if codriverObj == nil {
			codriverObj = asObject(entry["codriver"])
		}
		if codriver, ok := mapPerson(codriverObj); ok {
			rec.Codriver = &codriver
		}
		maker := asObject(entry["manufacturer"])
		if maker == nil {
			maker = asObject(entry["team"])
		}
		makerName := text(maker, "name", "manufacturerName")
		if makerName != nil {
			rec.Manufacturer = *makerName
			rec.ManufacturerFullName = text(maker, "fullName")
			rec.ManufacturerNationality = text(maker, "nationality")
		}
		rec.CarNumber = integer(entry, "carNo", "number", "entryId")
		rec.CarClass = text(entry, "groupName", "className", "group")
		rec.TeamName = text(entry, "entrantName", "teamName", "entrant")
		if rec.TeamName == nil {
			rec.TeamName = makerName
		}
		rec.Status = text(entry, "status")
		if rec.Status == nil {
			rec.Status = rally.Ptr("running")
		}
		out = append(out, rec)
	}
	return out
}

// StageTimeRecord is one crew's time on a stage before crew resolution.
type StageTimeRecord struct {
	Ref    EntryRef
	Result rally.StageResult
}

// MapStageTimes reads one stage's times.
func MapStageTimes(v any) []StageTimeRecord {
	var out []StageTimeRecord
	for _, e := range listAt(v, "stageTimings", "entries") {
		entry := asObject(e)
		if entry == nil {
			continue
		}
		out = append(out, StageTimeRecord{
			Ref: entryRef(entry),
			Result: rally.StageResult{
				StagePosition:   integer(entry, "position", "stagePosition"),
				StageTimeMS:     millis(entry, "stageTimeMs", "elapsedDurationMs"),
				OverallPosition: integer(entry, "overallPosition"),
				OverallTimeMS:   millis(entry, "overallTimeMs", "totalTimeMs"),
				GapFirstMS:      offset(entry, "diffFirstMs", "gapFirstMs"),
				GapPrevMS:       offset(entry, "diffPrevMs", "gapPrevMs"),
				PenaltyMS:       millis(entry, "penaltyDurationMs", "penaltyMs"),
				PenaltyReason:   text(entry, "penaltyReason"),
			},
		})
	}
	return out
}

// MapSplitFinish derives stage times from split times, taking each entry's
// largest elapsed split as its finish time. It backs stages whose times
// endpoint returned nothing.
func MapSplitFinish(v any) []StageTimeRecord {
	type best struct {
		ref EntryRef
		ms  int64
	}
	var order []string
	finishes := make(map[string]*best)
	for _, e := range listAt(v, "entrySplitPointTimes", "splitTimes", "entries") {
		entry := asObject(e)
		ms := millis(entry, "elapsedDurationMs", "stageTimeMs", "splitTimeMs")
		if entry == nil || ms == nil {
			continue
		}
		ref := entryRef(entry)
		key := fmt.Sprint(ref.CarNumbers, derefID(ref.DriverExternalID))
		cur, ok := finishes[key]
		if !ok {
			finishes[key] = &best{ref: ref, ms: *ms}
			order = append(order, key)
			continue
		}
		if *ms > cur.ms {
			cur.ms = *ms
		}
	}
	out := make([]StageTimeRecord, 0, len(order))
	for _, k := range order {
		b := finishes[k]
		out = append(out, StageTimeRecord{Ref: b.ref, Result: rally.StageResult{StageTimeMS: rally.Ptr(b.ms)}})
	}
	return out
}

func derefID(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// OverallRecord is one crew's final classification before crew resolution.
type OverallRecord struct {
	Ref    EntryRef
	Result rally.OverallResult
}

var pointKeys = []string{"pointsOverall", "points", "pointsPowerStage", "pointsSuperSunday", "pointsTotal"}

// MapOverall reads the final classification. Rows carrying any points key
// are marked Scored so their points overwrite stored ones.
func MapOverall(v any) []OverallRecord {
	var out []OverallRecord
	for _, e := range listAt(v, "entries", "results") {
		entry := asObject(e)
		if entry == nil {
			continue
		}
		position := integer(entry, "position", "overallPosition")
		res := rally.OverallResult{
			Position:         position,
			TotalTimeMS:      millis(entry, "totalTimeMs", "totalTime"),
			GapFirstMS:       offset(entry, "diffFirstMs", "gapFirstMs"),
			Status:           resultStatus(text(entry, "status"), position),
			RetirementReason: text(entry, "retirementReason", "reason"),
		}
		if res.Status == rally.ResultRetired {
			res.Position = nil
		}
		if has(entry, pointKeys...) {
			res.Scored = true
			res.Points.Overall = intOr(integer(entry, "pointsOverall", "points"))
			res.Points.PowerStage = intOr(integer(entry, "pointsPowerStage"))
			res.Points.SuperSunday = intOr(integer(entry, "pointsSuperSunday"))
			res.Points.Total = intOr(integer(entry, "pointsTotal"))
			if res.Points.Total == 0 {
				res.Points.Total = res.Points.Overall + res.Points.PowerStage + res.Points.SuperSunday
			}
		}
		out = append(out, OverallRecord{Ref: entryRef(entry), Result: res})
	}
	return out
}

func intOr(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func resultStatus(raw *string, position *int) rally.ResultStatus {
	if raw != nil {
		s := strings.ToLower(*raw)
		switch {
		case strings.Contains(s, "retir"), strings.Contains(s, "dnf"), strings.Contains(s, "withdr"):
			return rally.ResultRetired
		case strings.Contains(s, "finish"), strings.Contains(s, "classified"):
			return rally.ResultFinished
		}
	}
	return rally.ResultStatusFor(position)
}

// PenaltyRecord is a time penalty on a stage before resolution.
type PenaltyRecord struct {
	Ref             EntryRef
	StageExternalID *string
	StageNumber     *int
	PenaltyMS       *int64
	Reason          *string
}

// MapPenalties reads the penalty list. Rows without a duration are dropped.
func MapPenalties(v any) []PenaltyRecord {
	var out []PenaltyRecord
	for _, e := range listAt(v, "penalties", "entries") {
		entry := asObject(e)
		ms := millis(entry, "penaltyDurationMs", "penaltyMs", "durationMs", "penaltyDuration")
		if entry == nil || ms == nil {
			continue
		}
		out = append(out, PenaltyRecord{
			Ref:             entryRef(entry),
			StageExternalID: text(entry, "stageId", "stageExternalId"),
			StageNumber:     integer(entry, "stageNumber", "stageNo"),
			PenaltyMS:       ms,
			Reason:          text(entry, "reason", "penaltyReason", "description"),
		})
	}
	return out
}

// RetirementRecord is a crew that left the rally.
type RetirementRecord struct {
	Ref    EntryRef
	Reason *string
}

// MapRetirements reads the retirement list.
func MapRetirements(v any) []RetirementRecord {
	var out []RetirementRecord
	for _, e := range listAt(v, "retirements", "entries") {
		entry := asObject(e)
		if entry == nil {
			continue
		}
		out = append(out, RetirementRecord{
			Ref:    entryRef(entry),
			Reason: text(entry, "reason", "retirementReason", "description"),
		})
	}
	return out
}
