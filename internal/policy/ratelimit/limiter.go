// Package ratelimit implements the rolling-window quota and minimum request
// spacing shared by every call to the official results API.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

// Config holds rate limiter configuration.
type Config struct {
	Quota      int
	Window     time.Duration
	MinSpacing time.Duration
}

// Status is the read-only view of the quota window.
type Status struct {
	RequestsInLastHour int `json:"requestsInLastHour"`
	MaxPerHour         int `json:"maxPerHour"`
	Remaining          int `json:"remaining"`
}

// Window tracks request timestamps inside a trailing window and spaces
// requests apart. Acquire fails fast when the quota is spent.
type Window struct {
	mu      sync.Mutex
	clock   rally.Clock
	quota   int
	window  time.Duration
	spacing *rate.Limiter
	stamps  []time.Time
}

// New creates a Window. Zero values fall back to 200 requests per hour with 500ms spacing.
func New(cfg Config, clock rally.Clock) *Window {
	if cfg.Quota <= 0 {
		cfg.Quota = 200
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.MinSpacing < 0 {
		cfg.MinSpacing = 0
	}
	w := &Window{
		clock:  clock,
		quota:  cfg.Quota,
		window: cfg.Window,
	}
	if cfg.MinSpacing > 0 {
		w.spacing = rate.NewLimiter(rate.Every(cfg.MinSpacing), 1)
	}
	return w
}

// Acquire claims one request slot. It returns a *rally.QuotaError without
// waiting when the window is full, otherwise it sleeps until the spacing
// since the previous request is satisfied.
func (w *Window) Acquire(ctx context.Context) error {
	w.mu.Lock()
	now := w.clock.Now()
	w.pruneLocked(now)
	if len(w.stamps) >= w.quota {
		retry := w.stamps[0].Add(w.window).Sub(now)
		w.mu.Unlock()
		metrics.ObserveQuotaRejection()
		return &rally.QuotaError{Quota: w.quota, RetryAfter: retry}
	}
	var delay time.Duration
	if w.spacing != nil {
		delay = w.spacing.ReserveN(now, 1).DelayFrom(now)
	}
	w.stamps = append(w.stamps, now.Add(delay))
	w.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	metrics.ObserveRateLimitDelay(delay)
	if err := w.clock.Sleep(ctx, delay); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Status reports usage of the current window.
func (w *Window) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.clock.Now())
	remaining := w.quota - len(w.stamps)
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		RequestsInLastHour: len(w.stamps),
		MaxPerHour:         w.quota,
		Remaining:          remaining,
	}
}

// pruneLocked drops stamps at or before now-window. Stamps are appended in
// non-decreasing order so the expired ones form a prefix.
func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
