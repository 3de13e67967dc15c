// Package aggregator reads the results-aggregator site. Its pages are
// server rendered with the data embedded as streamed framework payloads,
// which are decoded with the streamed extractor.
package aggregator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/extract/streamed"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

const (
	// Source labels metrics, logs and errors produced by this client.
	Source = "aggregator"

	// DefaultBaseURL is the public site.
	DefaultBaseURL = "https://www.ewrc-results.com"

	// DefaultTopClass is the class whose entries make up the championship.
	DefaultTopClass = "RC1"
)

// Config holds client configuration.
type Config struct {
	BaseURL  string
	TopClass string
}

// Final is the decoded final-results page.
type Final struct {
	Results []Result
	Event   *EventDetail
}

// Client fetches and decodes aggregator pages.
type Client struct {
	cfg     Config
	pages   rally.PageFetcher
	catalog *Catalog
	logger  *zap.Logger
}

// New builds a Client. A nil catalog uses the built-in table.
func New(cfg Config, pages rally.PageFetcher, catalog *Catalog, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TopClass == "" {
		cfg.TopClass = DefaultTopClass
	}
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, pages: pages, catalog: catalog, logger: logger.Named("aggregator")}
}

// Catalog returns the event catalog.
func (c *Client) Catalog() *Catalog {
	return c.catalog
}

// TopClass returns the class kept by FilterClass callers.
func (c *Client) TopClass() string {
	return c.cfg.TopClass
}

// FinalResults fetches the final-results page of ev. It fails with
// rally.ErrNoData when the page carries no recognizable results.
func (c *Client) FinalResults(ctx context.Context, ev Event) (Final, error) {
	url := c.cfg.BaseURL + ev.Path("final")
	page, err := c.pages.FetchPage(ctx, url)
	if err != nil {
		return Final{}, fmt.Errorf("fetch final results %s: %w", ev.Name, err)
	}
	html := string(page.Body)

	results, ok := streamed.DecodeArray(html, "results", func(rs []Result) bool {
		return len(rs) > 0 && rs[0].ID != 0 && rs[0].Driver.LastName != ""
	})
	if !ok {
		return Final{}, &rally.SourceError{
			Source:   Source,
			Endpoint: url,
			Err:      fmt.Errorf("%w: no results found for %s", rally.ErrNoData, ev.Name),
		}
	}
	final := Final{Results: results}
	if detail, ok := streamed.DecodeObject(html, "data", func(d EventDetail) bool {
		return d.FromDate != "" && d.Starters > 0
	}); ok {
		final.Event = &detail
	}
	c.logger.Debug("final results decoded",
		zap.String("event", ev.Name),
		zap.Int("results", len(results)),
		zap.Bool("detail", final.Event != nil),
	)
	return final, nil
}

// Stages fetches the stage-results page of ev and decodes its itinerary.
func (c *Client) Stages(ctx context.Context, ev Event) ([]Stage, error) {
	url := c.cfg.BaseURL + ev.Path("results")
	page, err := c.pages.FetchPage(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch stage results %s: %w", ev.Name, err)
	}
	stages, ok := streamed.DecodeArray(string(page.Body), "stages", func(ss []Stage) bool {
		return len(ss) > 0 && ss[0].Number > 0 && ss[0].Name != ""
	})
	if !ok {
		return nil, &rally.SourceError{
			Source:   Source,
			Endpoint: url,
			Err:      fmt.Errorf("%w: no stages found for %s", rally.ErrNoData, ev.Name),
		}
	}
	return stages, nil
}
