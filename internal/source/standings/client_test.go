package standings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

type stubPages struct {
	body []byte
	err  error
	urls []string
}

func (s *stubPages) FetchPage(_ context.Context, url string) (rally.Page, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return rally.Page{}, s.err
	}
	return rally.Page{URL: url, StatusCode: 200, Body: s.body}, nil
}

func TestFetchParsesBothTables(t *testing.T) {
	t.Parallel()

	body, err := os.ReadFile(filepath.Join("..", "..", "extract", "standings", "testdata", "standings.html"))
	require.NoError(t, err)
	pages := &stubPages{body: body}
	c := New("https://team.example/", pages, nil)

	got, err := c.Fetch(context.Background(), 2025)
	require.NoError(t, err)
	require.Equal(t, []string{"https://team.example/wrc/standings/2025/"}, pages.urls)

	makers := MapManufacturers(got.Manufacturers)
	require.Len(t, makers, 3)
	require.Equal(t, "Toyota", makers[0].Name)
	require.Equal(t, "TOYOTA GAZOO Racing WRT", makers[0].FullName)
	require.Equal(t, "Japanese", *makers[0].Nationality)
	require.Equal(t, "Hyundai", makers[1].Name)
	require.Equal(t, "M-Sport Ford", makers[2].Name)
	require.Nil(t, makers[2].Nationality)

	drivers := MapDrivers(got.Drivers)
	require.NotEmpty(t, drivers)
	require.Equal(t, "Ogier S.", drivers[0].Name)
	require.Equal(t, "S. OGIER", drivers[0].Printed)
	require.Equal(t, "French", *drivers[0].Nationality)
	require.Equal(t, "Evans E.", drivers[1].Name)
}

func TestFetchEmptyPageIsNoData(t *testing.T) {
	t.Parallel()

	c := New("", &stubPages{body: []byte("<html><body><p>Maintenance</p></body></html>")}, nil)
	_, err := c.Fetch(context.Background(), 2026)
	require.ErrorIs(t, err, rally.ErrNoData)
	require.Contains(t, err.Error(), "https://toyotagazooracing.com/wrc/standings/2026/")
}

func TestFetchPropagatesUnavailable(t *testing.T) {
	t.Parallel()

	c := New("", &stubPages{err: rally.ErrSourceUnavailable}, nil)
	_, err := c.Fetch(context.Background(), 2025)
	require.ErrorIs(t, err, rally.ErrSourceUnavailable)
}

func TestAffiliationsMatchEveryNameShape(t *testing.T) {
	t.Parallel()

	defaults := NewAffiliations(nil)
	for _, name := range []string{"S. OGIER", "Ogier S.", "s. ogier", "Rovanperä K.", "k. rovanperä", "McErlean J."} {
		_, ok := defaults.Lookup(name)
		require.True(t, ok, name)
	}
	team, _ := defaults.Lookup("Katsuta T.")
	require.Equal(t, "Toyota WRT2", team)

	_, ok := defaults.Lookup("Paddon H.")
	require.False(t, ok)

	custom := NewAffiliations(map[string]string{"h. paddon": "Hyundai", "x. nobody": ""})
	team, ok = custom.Lookup("Paddon H.")
	require.True(t, ok)
	require.Equal(t, "Hyundai", team)
	_, ok = custom.Lookup("Nobody X.")
	require.False(t, ok)
}
