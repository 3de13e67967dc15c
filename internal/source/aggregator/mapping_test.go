package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

func result(pos int, raw int64, first, last string) Result {
	r := Result{Position: pos, Driver: Person{FirstName: first, LastName: last, Flag: "fi"}}
	r.Time.Raw = raw
	return r
}

func TestMapOverallGapsAgainstClassLeader(t *testing.T) {
	t.Parallel()

	const leader = int64(3_661_234)
	results := []Result{
		result(3, leader+38_866, "Adrien", "Fourmaux"),
		result(1, leader, "Sébastien", "Ogier"),
		result(2, leader+15_500, "Ott", "Tänak"),
		result(0, 0, "Sami", "Pajari"),
	}

	got := MapOverall(results)
	require.Len(t, got, 4)
	require.Equal(t, "1:01:01.234", rally.FormatDuration(*got[1].TotalTimeMS))
	require.Equal(t, int64(0), *got[1].GapFirstMS)
	require.Equal(t, int64(15_500), *got[2].GapFirstMS)
	require.Equal(t, int64(38_866), *got[0].GapFirstMS)

	retired := got[3]
	require.Nil(t, retired.Position)
	require.Nil(t, retired.TotalTimeMS)
	require.Nil(t, retired.GapFirstMS)
	require.Equal(t, rally.ResultRetired, retired.Status)
	require.Equal(t, rally.ResultFinished, got[0].Status)
}

func TestMapEntry(t *testing.T) {
	t.Parallel()

	r := result(1, 1, "Kalle", "Rovanperä")
	r.StartNumber = 69
	r.Team.Name = " TOYOTA GAZOO Racing WRT "
	r.Codriver = Person{FirstName: "Jonne", LastName: "Halttunen", Flag: "fi"}

	entry, ok := MapEntry(r, "RC1")
	require.True(t, ok)
	require.Equal(t, "Rovanperä K.", entry.Driver.Name)
	require.Equal(t, "Kalle Rovanperä", *entry.Driver.FullName)
	require.Equal(t, "Finnish", *entry.Driver.Nationality)
	require.Equal(t, "Halttunen J.", entry.Codriver.Name)
	require.Equal(t, "TOYOTA GAZOO Racing WRT", entry.Manufacturer)
	require.Equal(t, 69, *entry.CarNumber)
	require.Equal(t, "RC1", *entry.CarClass)
	require.Equal(t, "finished", *entry.Status)

	_, ok = MapEntry(Result{}, "RC1")
	require.False(t, ok)
}

func TestMapRally(t *testing.T) {
	t.Parallel()

	ev := Event{Season: 2025, Round: 2, Name: "Sweden", EventID: 90017, Slug: "rally-sweden-2025"}

	bare := MapRally(ev, nil)
	require.Equal(t, rally.StatusCompleted, bare.Status)
	require.Equal(t, "Sweden", *bare.OfficialName)
	require.Nil(t, bare.Country)

	detail := &EventDetail{Name: "Rally Sweden 2025", FromDate: "2025-02-13", UntilDate: "2025-02-16T00:00:00"}
	detail.Country.Name.EN = "Sweden"
	detail.Surface.EN = "Snow"
	full := MapRally(ev, detail)
	require.Equal(t, "Sweden", full.Name)
	require.Equal(t, "Rally Sweden 2025", *full.OfficialName)
	require.Equal(t, "Snow", *full.Surface)
	require.Equal(t, time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC), *full.StartDate)
	require.Equal(t, time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC), *full.EndDate)
}

func TestCatalogOverridesAndSeasonOrder(t *testing.T) {
	t.Parallel()

	c := NewCatalog([]Event{
		{Season: 2025, Round: 2, Name: "Sweden", EventID: 99999, Slug: "rally-sweden-2025-v2"},
		{Season: 2026, Round: 1, Name: "Monte Carlo", EventID: 100001, Slug: "rallye-monte-carlo-2026"},
		{Season: 2026, Round: 2},
	})

	sweden, err := c.Lookup(2025, 2)
	require.NoError(t, err)
	require.Equal(t, int64(99999), sweden.EventID)
	require.Equal(t, "/final/99999-rally-sweden-2025-v2/", sweden.Path("final"))

	season := c.Season(2025)
	require.Len(t, season, 14)
	for i, ev := range season {
		require.Equal(t, i+1, ev.Round)
	}
	require.Len(t, c.Season(2026), 1)

	_, err = c.Lookup(2026, 2)
	require.ErrorIs(t, err, rally.ErrNotFound)
}
