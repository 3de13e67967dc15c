package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

// BreakerConfig tunes when a source is considered down.
type BreakerConfig struct {
	FailureThreshold uint32
	Cooldown         time.Duration
}

// Guard wraps calls to one source with retry and a circuit breaker.
// Only ErrSourceUnavailable failures count against the breaker.
type Guard struct {
	source string
	cb     *gobreaker.CircuitBreaker[any]
	retry  *RetryPolicy
	clock  rally.Clock
	logger *zap.Logger
}

// NewGuard builds a Guard for source.
func NewGuard(source string, cfg BreakerConfig, retry *RetryPolicy, clock rally.Clock, logger *zap.Logger) *Guard {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, rally.ErrSourceUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.ObserveBreakerState(name, to.String())
		},
	}
	return &Guard{
		source: source,
		cb:     gobreaker.NewCircuitBreaker[any](settings),
		retry:  retry,
		clock:  clock,
		logger: logger,
	}
}

// State reports the breaker state as a string.
func (g *Guard) State() string {
	return g.cb.State().String()
}

// Call runs fn through the breaker, retrying transient failures per the policy.
func Call[T any](ctx context.Context, g *Guard, endpoint string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	out, err := g.cb.Execute(func() (any, error) {
		return g.withRetry(ctx, endpoint, func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ObserveSourceRequest(g.source, "breaker_open")
			return zero, &rally.SourceError{
				Source:   g.source,
				Endpoint: endpoint,
				Err:      fmt.Errorf("%w: circuit %s", rally.ErrSourceUnavailable, err.Error()),
			}
		}
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%s %s: unexpected result type %T", g.source, endpoint, out)
	}
	return typed, nil
}

func (g *Guard) withRetry(ctx context.Context, endpoint string, fn func(context.Context) (any, error)) (any, error) {
	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !g.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		backoff := g.retry.Backoff(attempt)
		g.logger.Debug("retrying source request",
			zap.String("source", g.source),
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if sleepErr := g.clock.Sleep(ctx, backoff); sleepErr != nil {
			return nil, err
		}
	}
}
