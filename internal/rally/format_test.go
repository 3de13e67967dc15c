package rally

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ms   int64
		want string
	}{
		{3_661_234, "1:01:01.234"},
		{61_005, "1:01.005"},
		{999, "0:00.999"},
		{0, "0:00.000"},
		{-1500, "-0:01.500"},
		{10 * 3_600_000, "10:00:00.000"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, FormatDuration(tt.ms))
		})
	}
}

func TestParseDurationRoundTrip(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"1:01:01.234", "1:01.005", "0:00.999"} {
		ms, err := ParseDuration(text)
		require.NoError(t, err)
		require.Equal(t, text, FormatDuration(ms))
	}

	ms, err := ParseDuration("+12.3")
	require.NoError(t, err)
	require.Equal(t, int64(12_300), ms)

	_, err = ParseDuration("a:b")
	require.Error(t, err)
	_, err = ParseDuration("")
	require.Error(t, err)
}

func TestLeaderGaps(t *testing.T) {
	t.Parallel()

	gaps := LeaderGaps([]*int64{Ptr(int64(1000)), Ptr(int64(1050)), Ptr(int64(1200))})
	require.Equal(t, []int64{0, 50, 150}, derefAll(t, gaps))

	gaps = LeaderGaps([]*int64{Ptr(int64(1050)), nil, Ptr(int64(1000))})
	require.Equal(t, int64(50), *gaps[0])
	require.Nil(t, gaps[1])
	require.Equal(t, int64(0), *gaps[2])

	require.Equal(t, []*int64{nil}, LeaderGaps([]*int64{nil}))
}

func TestPreviousGaps(t *testing.T) {
	t.Parallel()

	gaps := PreviousGaps([]*int64{Ptr(int64(1200)), Ptr(int64(1000)), nil, Ptr(int64(1050)), Ptr(int64(1050))})
	require.Equal(t, int64(150), *gaps[0])
	require.Equal(t, int64(0), *gaps[1])
	require.Nil(t, gaps[2])
	require.Equal(t, int64(50), *gaps[3])
	require.Equal(t, int64(0), *gaps[4], "a tie shares the time ahead")

	require.Equal(t, []*int64{nil}, PreviousGaps([]*int64{nil}))
}

func TestStatusAdvance(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusCompleted, StatusUpcoming.Advance(StatusCompleted))
	require.Equal(t, StatusCompleted, StatusCompleted.Advance(StatusUpcoming))
	require.Equal(t, StatusUpcoming, StatusUpcoming.Advance(""))
	require.Equal(t, StatusUpcoming, Status("").Advance(""))
}

func TestQuotaErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetch: %w", &QuotaError{Quota: 200, RetryAfter: 1500 * time.Millisecond})
	require.True(t, errors.Is(err, ErrQuotaExhausted))
	var qe *QuotaError
	require.True(t, errors.As(err, &qe))
	require.Equal(t, 2, qe.RetryAfterSeconds())
	require.Contains(t, err.Error(), "oldest expires in 2s")
}

func TestSourceErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := &SourceError{Source: "official", Endpoint: "/x", Status: 503, Err: ErrSourceUnavailable}
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.Contains(t, err.Error(), "http 503")
}

func derefAll(t *testing.T, in []*int64) []int64 {
	t.Helper()
	out := make([]int64, len(in))
	for i, v := range in {
		require.NotNil(t, v)
		out[i] = *v
	}
	return out
}
