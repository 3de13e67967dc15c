// Package official reads the federation results API: the season calendar,
// itineraries, entry lists, stage times and classifications of each event.
package official

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/rally-results-ingest/internal/cache"
	"github.com/JakeFAU/rally-results-ingest/internal/fetcher"
	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

const (
	// Source labels metrics, logs and errors produced by this client.
	Source = "official"

	// DefaultBaseURL is the public API host.
	DefaultBaseURL = "https://api.wrc.com"

	calendarPath = "/contel-page/83388/calendar/active-season/"
	eventPath    = "/results-api/rally-event/%d"
)

// Config holds client configuration.
type Config struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	CacheTTL    time.Duration
	CalendarTTL time.Duration
}

// Client fetches loose JSON documents from the official API. Every call
// goes through the response cache first; misses are de-duplicated, spend
// one quota slot and run behind the source guard.
type Client struct {
	cfg    Config
	http   *resty.Client
	window *ratelimit.Window
	cache  *cache.Responses
	group  singleflight.Group
	guard  *fetcher.Guard
	logger *zap.Logger
}

// New builds a Client. guard may be nil in which case calls are neither
// retried nor circuit broken.
func New(cfg Config, window *ratelimit.Window, responses *cache.Responses, guard *fetcher.Guard, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.CalendarTTL <= 0 {
		cfg.CalendarTTL = time.Hour
	}
	if responses == nil {
		responses = cache.New(cfg.CacheTTL, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		window: window,
		cache:  responses,
		guard:  guard,
		logger: logger.Named("official"),
	}
}

// Status reports the quota window.
func (c *Client) Status() ratelimit.Status {
	if c.window == nil {
		return ratelimit.Status{}
	}
	return c.window.Status()
}

// Fetch returns the decoded document at endpoint, cached for ttl.
func (c *Client) Fetch(ctx context.Context, endpoint string, ttl time.Duration) (any, error) {
	if val, ok := c.cache.Get(endpoint); ok {
		metrics.ObserveCacheHit(Source)
		return val, nil
	}
	val, err, _ := c.group.Do(endpoint, func() (any, error) {
		if val, ok := c.cache.Get(endpoint); ok {
			metrics.ObserveCacheHit(Source)
			return val, nil
		}
		var (
			doc any
			err error
		)
		if c.guard != nil {
			doc, err = fetcher.Call(ctx, c.guard, endpoint, c.fetchOnce(endpoint))
		} else {
			doc, err = c.fetchOnce(endpoint)(ctx)
		}
		if err != nil {
			return nil, err
		}
		c.cache.Set(endpoint, doc, ttl)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *Client) fetchOnce(endpoint string) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if c.window != nil {
			if err := c.window.Acquire(ctx); err != nil {
				if errors.Is(err, rally.ErrQuotaExhausted) {
					metrics.ObserveSourceRequest(Source, "quota")
				}
				return nil, err
			}
		}
		start := time.Now()
		resp, err := c.http.R().SetContext(ctx).Get(endpoint)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			metrics.ObserveSourceRequest(Source, "unavailable")
			return nil, &rally.SourceError{
				Source:   Source,
				Endpoint: endpoint,
				Err:      fmt.Errorf("%w: %w", rally.ErrSourceUnavailable, err),
			}
		}
		if !resp.IsSuccess() {
			metrics.ObserveSourceRequest(Source, "unavailable")
			return nil, &rally.SourceError{
				Source:   Source,
				Endpoint: endpoint,
				Status:   resp.StatusCode(),
				Err:      rally.ErrSourceUnavailable,
			}
		}
		var doc any
		if err := json.Unmarshal(resp.Body(), &doc); err != nil {
			metrics.ObserveSourceRequest(Source, "malformed")
			return nil, &rally.SourceError{
				Source:   Source,
				Endpoint: endpoint,
				Status:   resp.StatusCode(),
				Err:      fmt.Errorf("%w: %w", rally.ErrMalformedPayload, err),
			}
		}
		metrics.ObserveSourceRequest(Source, "ok")
		c.logger.Debug("api response",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode()),
			zap.Int("bytes", len(resp.Body())),
			zap.Duration("duration", time.Since(start)),
		)
		return doc, nil
	}
}

// ActiveSeason returns the calendar items of the active season.
func (c *Client) ActiveSeason(ctx context.Context) ([]any, error) {
	doc, err := c.Fetch(ctx, calendarPath, c.cfg.CalendarTTL)
	if err != nil {
		return nil, err
	}
	items := asList(dig(doc, "rallyEvents", "items"))
	if items == nil {
		items = listAt(doc, "items")
	}
	return items, nil
}

func (c *Client) event(ctx context.Context, eventID int64, suffix string) (any, error) {
	return c.Fetch(ctx, fmt.Sprintf(eventPath, eventID)+suffix, c.cfg.CacheTTL)
}

// EventCars returns the entry list of an event.
func (c *Client) EventCars(ctx context.Context, eventID int64) (any, error) {
	return c.event(ctx, eventID, "/cars")
}

// EventItinerary returns the legs, sections and stages of an event.
func (c *Client) EventItinerary(ctx context.Context, eventID int64) (any, error) {
	return c.event(ctx, eventID, "/itinerary")
}

// EventResult returns the final classification of an event.
func (c *Client) EventResult(ctx context.Context, eventID int64) (any, error) {
	return c.event(ctx, eventID, "/result")
}

// StageTimes returns the times of one stage.
func (c *Client) StageTimes(ctx context.Context, eventID int64, stageExternalID string) (any, error) {
	return c.event(ctx, eventID, "/stage-times/stage-external/"+stageExternalID)
}

// SplitTimes returns the split times of one stage.
func (c *Client) SplitTimes(ctx context.Context, eventID int64, stageExternalID string) (any, error) {
	return c.event(ctx, eventID, "/split-times/stage-external/"+stageExternalID)
}

// Penalties returns the time penalties of an event.
func (c *Client) Penalties(ctx context.Context, eventID int64) (any, error) {
	return c.event(ctx, eventID, "/penalties")
}

// Retirements returns the crews that retired from an event.
func (c *Client) Retirements(ctx context.Context, eventID int64) (any, error) {
	return c.event(ctx, eventID, "/retirements")
}
