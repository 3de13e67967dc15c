package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rally-results-ingest/internal/clock/fake"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

func TestWindowRejectsRequestOverQuotaUntilOldestExpires(t *testing.T) {
	t.Parallel()

	clk := fake.New(time.Date(2025, 1, 23, 9, 0, 0, 0, time.UTC))
	w := New(Config{Quota: 200, Window: time.Hour, MinSpacing: 500 * time.Millisecond}, clk)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		require.NoError(t, w.Acquire(ctx), "request %d", i+1)
	}
	require.Equal(t, Status{RequestsInLastHour: 200, MaxPerHour: 200, Remaining: 0}, w.Status())

	err := w.Acquire(ctx)
	require.ErrorIs(t, err, rally.ErrQuotaExhausted)
	var qe *rally.QuotaError
	require.True(t, errors.As(err, &qe))
	require.Greater(t, qe.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, qe.RetryAfter, time.Hour)

	clk.Advance(qe.RetryAfter)
	require.NoError(t, w.Acquire(ctx))
	require.Equal(t, 200, w.Status().RequestsInLastHour)
}

func TestWindowSpacesConsecutiveRequests(t *testing.T) {
	t.Parallel()

	clk := fake.New(time.Unix(1_700_000_000, 0).UTC())
	w := New(Config{Quota: 10, Window: time.Hour, MinSpacing: 500 * time.Millisecond}, clk)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Acquire(context.Background()))
	}
	require.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, clk.Sleeps())

	clk.Advance(2 * time.Second)
	require.NoError(t, w.Acquire(context.Background()))
	require.Len(t, clk.Sleeps(), 2, "a request after the spacing elapsed must not wait")
}

func TestWindowRejectionDoesNotConsumeSpacing(t *testing.T) {
	t.Parallel()

	clk := fake.New(time.Unix(0, 0).UTC())
	w := New(Config{Quota: 1, Window: time.Minute}, clk)

	require.NoError(t, w.Acquire(context.Background()))
	err := w.Acquire(context.Background())
	require.ErrorIs(t, err, rally.ErrQuotaExhausted)
	require.Contains(t, err.Error(), "oldest expires in 60s")
	require.Empty(t, clk.Sleeps())
}

func TestWindowConcurrentAcquireNeverExceedsQuota(t *testing.T) {
	t.Parallel()

	clk := fake.New(time.Unix(0, 0).UTC())
	w := New(Config{Quota: 50, Window: time.Hour}, clk)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 120; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Acquire(context.Background()); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, accepted)
	require.Equal(t, 0, w.Status().Remaining)
}

func TestWindowDefaults(t *testing.T) {
	t.Parallel()

	w := New(Config{}, fake.New(time.Unix(0, 0)))
	require.Equal(t, Status{MaxPerHour: 200, Remaining: 200}, w.Status())
}
