package official

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestMapCalendarFallbacks(t *testing.T) {
	t.Parallel()

	items := asList(decode(t, `[
		{"id": 101, "round": 2, "name": "Rally Sweden", "officialName": "Rally Sweden 2025",
		 "country": {"name": "Sweden"}, "surface": "Snow", "startDate": "2025-02-13T00:00:00Z",
		 "endDate": "2025-02-16", "totalStages": 18},
		{"eventId": "102", "eventName": "Safari Rally Kenya", "fullName": "WRC Safari Rally Kenya",
		 "countryName": "Kenya", "date": "2025-03-20"},
		{"order": 9}
	]`))

	got := MapCalendar(items, 0)
	want := []rally.Rally{
		{
			Season: 2025, Round: 2, Name: "Rally Sweden", OfficialName: rally.Ptr("Rally Sweden 2025"),
			Country: rally.Ptr("Sweden"), Surface: rally.Ptr("Snow"),
			StartDate: day(2025, 2, 13), EndDate: day(2025, 2, 16), TotalStages: rally.Ptr(18),
			Status: rally.StatusUpcoming, EventID: rally.Ptr(int64(101)),
		},
		{
			Season: 2025, Round: 2, Name: "Safari Rally Kenya", OfficialName: rally.Ptr("WRC Safari Rally Kenya"),
			Country: rally.Ptr("Kenya"), StartDate: day(2025, 3, 20),
			Status: rally.StatusUpcoming, EventID: rally.Ptr(int64(102)),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MapCalendar mismatch (-want +got):\n%s", diff)
	}

	withSeason := MapCalendar(items, 2025)
	require.Len(t, withSeason, 3)
	require.Equal(t, "Unknown Rally", withSeason[2].Name)
	require.Equal(t, 9, withSeason[2].Round)
	require.Equal(t, "Unknown Rally", *withSeason[2].OfficialName)
}

func TestMapItineraryFlattensLegs(t *testing.T) {
	t.Parallel()

	doc := decode(t, `{"itineraryLegs": [
		{"order": 1, "legDate": "2025-02-14", "itinerarySections": [
			{"controls": [
				{"stageId": 2201, "number": 1, "name": "Hof-Finnskog 1", "distance": 21.19},
				{"number": 2, "length": "12.5", "powerStage": false}
			]}
		]},
		{"legId": 2, "sections": [
			{"stages": [
				{"stageId": "18", "stageName": "Umeå Sprint", "isPowerStage": true, "date": "2025-02-16", "startTime": "12:15"},
				{"name": "no identity"}
			]}
		]}
	]}`)

	got := MapItinerary(doc)
	want := []StageRecord{
		{ExternalID: "2201", Stage: rally.Stage{Number: 1, Name: rally.Ptr("Hof-Finnskog 1"), DistanceKM: rally.Ptr(21.19), Leg: rally.Ptr(1), Date: day(2025, 2, 14)}},
		{ExternalID: "2", Stage: rally.Stage{Number: 2, Name: rally.Ptr("SS2"), DistanceKM: rally.Ptr(12.5), IsPowerStage: rally.Ptr(false), Leg: rally.Ptr(1), Date: day(2025, 2, 14)}},
		{ExternalID: "18", Stage: rally.Stage{Number: 18, Name: rally.Ptr("Umeå Sprint"), IsPowerStage: rally.Ptr(true), Date: day(2025, 2, 16), StartTime: rally.Ptr("12:15")}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MapItinerary mismatch (-want +got):\n%s", diff)
	}
}

func TestMapEntries(t *testing.T) {
	t.Parallel()

	doc := decode(t, `{"entries": [
		{"carNo": 17, "groupName": "RC1", "entrantName": "TOYOTA GAZOO RACING WRT",
		 "driver": {"personId": 501, "firstName": "Sébastien", "lastName": "OGIER", "nationality": {"name": "French"}},
		 "coDriver": {"id": 601, "firstName": "Vincent", "lastName": "Landais", "country": "fr"},
		 "manufacturer": {"name": "Toyota", "fullName": "Toyota Gazoo Racing"}},
		{"number": 33, "driver": {"firstName": "Elfyn", "lastName": "Evans"}, "team": {"manufacturerName": "Toyota"}, "status": "retired"},
		{"carNo": 99, "driver": {}}
	]}`)

	got := MapEntries(doc)
	require.Len(t, got, 2)

	ogier := got[0]
	require.Equal(t, "Ogier S.", ogier.Driver.Name)
	require.Equal(t, "Sébastien OGIER", *ogier.Driver.FullName)
	require.Equal(t, "French", *ogier.Driver.Nationality)
	require.Equal(t, int64(501), *ogier.Driver.ExternalID)
	require.NotNil(t, ogier.Codriver)
	require.Equal(t, "Landais V.", ogier.Codriver.Name)
	require.Equal(t, "French", *ogier.Codriver.Nationality)
	require.Equal(t, "Toyota", ogier.Manufacturer)
	require.Equal(t, "Toyota Gazoo Racing", *ogier.ManufacturerFullName)
	require.Equal(t, 17, *ogier.CarNumber)
	require.Equal(t, "RC1", *ogier.CarClass)
	require.Equal(t, "TOYOTA GAZOO RACING WRT", *ogier.TeamName)
	require.Equal(t, "running", *ogier.Status)

	evans := got[1]
	require.Nil(t, evans.Codriver)
	require.Equal(t, 33, *evans.CarNumber)
	require.Equal(t, "Toyota", *evans.TeamName)
	require.Equal(t, "retired", *evans.Status)
}

func TestMapStageTimesAndSplitFallback(t *testing.T) {
	t.Parallel()

	times := MapStageTimes(decode(t, `{"stageTimings": [
		{"carNo": 17, "position": 1, "stageTimeMs": 612300, "totalTimeMs": 3661234, "overallPosition": 1},
		{"driverId": 502, "stagePosition": 2, "elapsedDurationMs": 614100, "diffFirstMs": 1800, "penaltyMs": 10000, "penaltyReason": "late at TC"}
	]}`))
	require.Len(t, times, 2)
	require.Equal(t, []int{17}, times[0].Ref.CarNumbers)
	require.Equal(t, int64(612300), *times[0].Result.StageTimeMS)
	require.Equal(t, int64(3661234), *times[0].Result.OverallTimeMS)
	require.Nil(t, times[0].Result.PenaltyMS)
	require.Equal(t, int64(502), *times[1].Ref.DriverExternalID)
	require.Equal(t, 2, *times[1].Result.StagePosition)
	require.Equal(t, int64(10000), *times[1].Result.PenaltyMS)
	require.Equal(t, "late at TC", *times[1].Result.PenaltyReason)

	splits := MapSplitFinish(decode(t, `[
		{"carNo": 17, "elapsedDurationMs": 200000},
		{"carNo": 8, "elapsedDurationMs": 210000},
		{"carNo": 17, "elapsedDurationMs": 612300},
		{"carNo": 8}
	]`))
	require.Len(t, splits, 2)
	require.Equal(t, int64(612300), *splits[0].Result.StageTimeMS)
	require.Equal(t, int64(210000), *splits[1].Result.StageTimeMS)
}

func TestMapStageTimesKeepsZeroGap(t *testing.T) {
	t.Parallel()

	times := MapStageTimes(decode(t, `{"stageTimings": [
		{"carNo": 17, "elapsedDurationMs": 612300, "diffFirstMs": 0, "diffPrevMs": 0},
		{"carNo": 33, "elapsedDurationMs": 613000, "diffFirstMs": "+0.7"},
		{"carNo": 16, "elapsedDurationMs": 615400}
	]}`))
	require.Len(t, times, 3)
	require.NotNil(t, times[0].Result.GapFirstMS, "the leader's zero gap is a value")
	require.Equal(t, int64(0), *times[0].Result.GapFirstMS)
	require.Equal(t, int64(0), *times[0].Result.GapPrevMS)
	require.Equal(t, int64(700), *times[1].Result.GapFirstMS)
	require.Nil(t, times[2].Result.GapFirstMS)

	overall := MapOverall(decode(t, `{"entries": [{"carNo": 17, "position": 1, "totalTimeMs": 3661234, "diffFirstMs": 0}]}`))
	require.Len(t, overall, 1)
	require.Equal(t, int64(0), *overall[0].Result.GapFirstMS)
}

func TestMapOverallStatusAndPoints(t *testing.T) {
	t.Parallel()

	got := MapOverall(decode(t, `{"results": [
		{"carNo": 17, "position": 1, "totalTimeMs": 3661234, "pointsOverall": 25, "pointsPowerStage": 5},
		{"carNo": 33, "overallPosition": 2, "totalTime": "1:01:16.734", "status": "Classified"},
		{"carNo": 8, "position": 14, "status": "Retired", "retirementReason": "Suspension"},
		{"carNo": 11}
	]}`))
	require.Len(t, got, 4)

	winner := got[0].Result
	require.True(t, winner.Scored)
	require.Equal(t, rally.Points{Overall: 25, PowerStage: 5, Total: 30}, winner.Points)
	require.Equal(t, rally.ResultFinished, winner.Status)

	second := got[1].Result
	require.False(t, second.Scored)
	require.Equal(t, int64(3_676_734), *second.TotalTimeMS)
	require.Equal(t, rally.ResultFinished, second.Status)

	retired := got[2].Result
	require.Equal(t, rally.ResultRetired, retired.Status)
	require.Nil(t, retired.Position)
	require.Equal(t, "Suspension", *retired.RetirementReason)

	require.Equal(t, rally.ResultRetired, got[3].Result.Status)
}

func TestMapPenaltiesAndRetirements(t *testing.T) {
	t.Parallel()

	penalties := MapPenalties(decode(t, `{"penalties": [
		{"carNo": 17, "stageId": 2201, "penaltyDurationMs": 10000, "reason": "Late at TC"},
		{"carNo": 8, "stageNumber": 4, "durationMs": 60000, "penaltyReason": "Jump start"},
		{"carNo": 33, "reason": "warning only"}
	]}`))
	require.Len(t, penalties, 2)
	require.Equal(t, "2201", *penalties[0].StageExternalID)
	require.Nil(t, penalties[0].StageNumber)
	require.Equal(t, 4, *penalties[1].StageNumber)
	require.Equal(t, int64(60000), *penalties[1].PenaltyMS)
	require.Equal(t, "Jump start", *penalties[1].Reason)

	retirements := MapRetirements(decode(t, `[{"driver": {"personId": 502}, "reason": "Engine"}]`))
	require.Len(t, retirements, 1)
	require.Equal(t, int64(502), *retirements[0].Ref.DriverExternalID)
	require.Equal(t, "Engine", *retirements[0].Reason)
}

func TestEntryRefResolvesByCarNumberThenDriver(t *testing.T) {
	t.Parallel()

	crews := []rally.CrewRef{
		{CrewID: 1, CarNumber: rally.Ptr(17), DriverExternalID: rally.Ptr(int64(501))},
		{CrewID: 2, CarNumber: rally.Ptr(33), DriverExternalID: rally.Ptr(int64(502))},
	}

	got, ok := EntryRef{CarNumbers: []int{33}}.Resolve(crews)
	require.True(t, ok)
	require.Equal(t, int64(2), got.CrewID)

	got, ok = EntryRef{CarNumbers: []int{99}, DriverExternalID: rally.Ptr(int64(501))}.Resolve(crews)
	require.True(t, ok)
	require.Equal(t, int64(1), got.CrewID)

	_, ok = EntryRef{CarNumbers: []int{99}}.Resolve(crews)
	require.False(t, ok)
}
