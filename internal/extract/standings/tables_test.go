package standings

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseFixture(t *testing.T) {
	t.Parallel()

	html, err := os.ReadFile("testdata/standings.html")
	require.NoError(t, err)

	got := Parse(html)
	want := Tables{
		Manufacturers: []Row{
			{Position: 1, Name: "TOYOTA GAZOO Racing WRT", FlagToken: "japan", Points: 512},
			{Position: 2, Name: "Hyundai Shell Mobis World Rally Team", FlagToken: "korea", Points: 401},
			{Position: 3, Name: "M-Sport Ford World Rally Team", Points: 0},
		},
		Drivers: []Row{
			{Position: 1, Name: "S. OGIER", FlagToken: "france", Points: 210},
			{Position: 2, Name: "E. EVANS", FlagToken: "great-britain", Points: 198},
			{Position: 5, Name: "H. PADDON", FlagToken: "new_zealand", Points: 17},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Parse mismatch (-want +got):\n%s", diff)
	}
	require.False(t, got.Empty())
}

func TestParseDriftYieldsEmpty(t *testing.T) {
	t.Parallel()

	got := Parse([]byte(`<html><body><div class="ranking"><table><tr><td>1</td></tr></table></div></body></html>`))
	require.True(t, got.Empty())
	require.True(t, Parse(nil).Empty())
}

func TestFlagToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  string
		want string
	}{
		{"/img/icon_country_finland.png", "finland"},
		{"https://x.org/a/icon_country_czech_republic.png?x=1", "czech_republic"},
		{"/static/flag/netherlands.png", "netherlands"},
		{"/other/Estonia.svg", "estonia"},
		{"spain", "spain"},
		{"", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FlagToken(tt.src), tt.src)
	}
}
