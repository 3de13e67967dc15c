package rally

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrSourceUnavailable reports DNS, connectivity, non-2xx or open-breaker failures.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedPayload reports a response that could not be decoded at all.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrNoData reports a required fetch that produced zero usable records.
	ErrNoData = errors.New("no data")
	// ErrNotFound reports a missing stored record or catalog entry.
	ErrNotFound = errors.New("not found")
	// ErrQuotaExhausted reports that the hourly request quota is spent.
	ErrQuotaExhausted = errors.New("request quota exhausted")
)

// QuotaError carries the wait until the oldest request leaves the window.
type QuotaError struct {
	Quota      int
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("rate limit: %d requests/hour exhausted, oldest expires in %ds", e.Quota, e.RetryAfterSeconds())
}

// Is lets errors.Is match ErrQuotaExhausted.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

// RetryAfterSeconds rounds the wait up to whole seconds.
func (e *QuotaError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// SourceError decorates a sentinel with the source and endpoint that failed.
type SourceError struct {
	Source   string
	Endpoint string
	Status   int
	Err      error
}

func (e *SourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: http %d: %v", e.Source, e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Source, e.Endpoint, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
