// Package collyfetcher implements rally.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/fetcher"
	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

// Config controls collector behavior.
type Config struct {
	Source        string
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher retrieves HTML pages for one scraped source through a Guard.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	guard         *fetcher.Guard
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Pages are revisitable since every sync re-reads them.
func New(cfg Config, guard *fetcher.Guard, logger *zap.Logger) *Fetcher {
	if cfg.Source == "" {
		cfg.Source = "page"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		guard:         guard,
		logger:        logger,
	}
}

// FetchPage executes a single HTTP GET for url.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (rally.Page, error) {
	if f.guard == nil {
		return f.fetchOnce(ctx, url)
	}
	return fetcher.Call(ctx, f.guard, url, func(ctx context.Context) (rally.Page, error) {
		return f.fetchOnce(ctx, url)
	})
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (rally.Page, error) {
	var (
		page     rally.Page
		status   int
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, &page, &status, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return rally.Page{}, err
		}
		metrics.ObserveSourceRequest(f.cfg.Source, "error")
		return rally.Page{}, f.classify(url, status, err)
	}
	metrics.ObserveSourceRequest(f.cfg.Source, "success")
	f.logger.Debug("page fetched",
		zap.String("url", page.URL),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", len(page.Body)),
		zap.Duration("duration", page.Duration),
	)
	return page, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	page *rally.Page,
	status *int,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = rally.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

// runCollector visits url and returns once the visit has finished. The
// collector's requests carry ctx, so a cancellation aborts the in-flight
// request and the visit goroutine never outlives the call.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

// classify maps a failed visit onto the source error taxonomy: every HTTP
// or network failure is "source unavailable", carrying the status if any.
func (f *Fetcher) classify(url string, status int, err error) error {
	srcErr := &rally.SourceError{Source: f.cfg.Source, Endpoint: url, Status: status}
	if status != 0 {
		srcErr.Err = fmt.Errorf("%w: %s", rally.ErrSourceUnavailable, http.StatusText(status))
	} else {
		srcErr.Err = fmt.Errorf("%w: %w", rally.ErrSourceUnavailable, err)
	}
	return srcErr
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
