package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/config"
	"github.com/JakeFAU/rally-results-ingest/internal/ingest"
	"github.com/JakeFAU/rally-results-ingest/internal/metrics"
	"github.com/JakeFAU/rally-results-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

// Ingestor is the set of orchestration operations the server triggers.
type Ingestor interface {
	SyncCalendar(ctx context.Context, season int) (ingest.CalendarSummary, error)
	SyncRally(ctx context.Context, eventID int64) (ingest.RallySummary, error)
	SyncSeason(ctx context.Context, season int) (ingest.SeasonSummary, error)
	ScrapeRally(ctx context.Context, season, round int) (ingest.ScrapeSummary, error)
	ScrapeSeason(ctx context.Context, season int) (ingest.ScrapeSeasonSummary, error)
	ScrapeStandings(ctx context.Context, season int) (ingest.StandingsSummary, error)
	RecomputeDriverStats(ctx context.Context) (ingest.StatsSummary, error)
	Status() ratelimit.Status
}

// Server wires HTTP handlers to the ingestion service.
type Server struct {
	router chi.Router
	svc    Ingestor
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Ingestor, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger.Named("api")}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(timeoutMiddleware(timeout))
		r.Post("/sync/calendar", s.syncCalendar)
		r.Post("/sync/rally", s.syncRally)
		r.Post("/sync/season", s.syncSeason)
		r.Post("/scrape/rally", s.scrapeRally)
		r.Post("/scrape/season", s.scrapeSeason)
		r.Post("/scrape/standings", s.scrapeStandings)
		r.Post("/stats/recompute", s.recomputeStats)
		r.Get("/status", s.status)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type seasonRequest struct {
	Season int `json:"season"`
}

type syncRallyRequest struct {
	EventID int64 `json:"eventId"`
}

type scrapeRallyRequest struct {
	Season int `json:"season"`
	Round  int `json:"round"`
}

func (s *Server) syncCalendar(w http.ResponseWriter, r *http.Request) {
	var req seasonRequest
	if !s.decode(w, r, &req) {
		return
	}
	respond(s, w, r, func(ctx context.Context) (ingest.CalendarSummary, error) {
		return s.svc.SyncCalendar(ctx, req.Season)
	})
}

func (s *Server) syncRally(w http.ResponseWriter, r *http.Request) {
	var req syncRallyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.EventID <= 0 {
		writeError(w, http.StatusBadRequest, "eventId required")
		return
	}
	respond(s, w, r, func(ctx context.Context) (ingest.RallySummary, error) {
		return s.svc.SyncRally(ctx, req.EventID)
	})
}

func (s *Server) syncSeason(w http.ResponseWriter, r *http.Request) {
	var req seasonRequest
	if !s.decode(w, r, &req) {
		return
	}
	respond(s, w, r, func(ctx context.Context) (ingest.SeasonSummary, error) {
		return s.svc.SyncSeason(ctx, req.Season)
	})
}

func (s *Server) scrapeRally(w http.ResponseWriter, r *http.Request) {
	var req scrapeRallyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Round <= 0 {
		writeError(w, http.StatusBadRequest, "round required")
		return
	}
	respond(s, w, r, func(ctx context.Context) (ingest.ScrapeSummary, error) {
		return s.svc.ScrapeRally(ctx, req.Season, req.Round)
	})
}

func (s *Server) scrapeSeason(w http.ResponseWriter, r *http.Request) {
	var req seasonRequest
	if !s.decode(w, r, &req) {
		return
	}
	respond(s, w, r, func(ctx context.Context) (ingest.ScrapeSeasonSummary, error) {
		return s.svc.ScrapeSeason(ctx, req.Season)
	})
}

func (s *Server) scrapeStandings(w http.ResponseWriter, r *http.Request) {
	var req seasonRequest
	if !s.decode(w, r, &req) {
		return
	}
	respond(s, w, r, func(ctx context.Context) (ingest.StandingsSummary, error) {
		return s.svc.ScrapeStandings(ctx, req.Season)
	})
}

func (s *Server) recomputeStats(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.svc.RecomputeDriverStats)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// decode reads an optional JSON body into dst. An empty body leaves dst
// zero so every season defaults to the current one.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid JSON")
	return false
}

func respond[T any](s *Server, w http.ResponseWriter, r *http.Request, run func(context.Context) (T, error)) {
	summary, err := run(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// statusFor maps the ingestion error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rally.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, rally.ErrSourceUnavailable), errors.Is(err, rally.ErrMalformedPayload):
		return http.StatusBadGateway
	case errors.Is(err, rally.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rally.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	var qe *rally.QuotaError
	if errors.As(err, &qe) {
		w.Header().Set("Retry-After", strconv.Itoa(qe.RetryAfterSeconds()))
	}
	s.logger.Warn("operation failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeError(w, status, err.Error())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", RequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Run serves handler on port until ctx is canceled, then drains in-flight
// requests for up to drain.
func Run(ctx context.Context, port int, handler http.Handler, drain time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
