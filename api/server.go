// Package api provides the IntentVision HTTP server: ingestion, forecast
// routing, usage, and dead-letter inspection endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/intent-solutions/intentvision/internal/deadletter"
	"github.com/intent-solutions/intentvision/internal/forecast"
	"github.com/intent-solutions/intentvision/internal/ingest"
	"github.com/intent-solutions/intentvision/internal/policy"
	"github.com/intent-solutions/intentvision/internal/routing"
	"github.com/intent-solutions/intentvision/internal/usage"
	v1 "github.com/intent-solutions/intentvision/pkg/api"
)

var version = "0.1.0"

// SeriesStore reads previously ingested metric series. Used to fill in
// forecast history when the caller does not supply it inline.
type SeriesStore interface {
	GetSeries(ctx context.Context, orgID, metricKey string, since time.Time) ([]v1.SeriesPoint, error)
	ListMetricKeys(ctx context.Context, orgID string) ([]string, error)
}

// Pinger reports backing-store connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxRequestSize int64
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		RequestTimeout: 60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
	}
}

// Server is the HTTP API server
type Server struct {
	httpServer  *http.Server
	coordinator *ingest.Coordinator
	forecasts   *forecast.Service
	plans       *policy.Table
	counter     *usage.Counter
	letters     deadletter.Sink
	series      SeriesStore
	pinger      Pinger
	config      *Config
	log         zerolog.Logger
	startTime   time.Time
}

// Deps bundles the components the server exposes. Series and Pinger are
// optional; the related endpoints degrade when absent.
type Deps struct {
	Coordinator *ingest.Coordinator
	Forecasts   *forecast.Service
	Plans       *policy.Table
	Counter     *usage.Counter
	Letters     deadletter.Sink
	Series      SeriesStore
	Pinger      Pinger
}

// NewServer creates a new API server
func NewServer(deps Deps, config *Config, log zerolog.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("ingestion coordinator is required")
	}
	if deps.Forecasts == nil {
		return nil, fmt.Errorf("forecast service is required")
	}
	if deps.Plans == nil {
		deps.Plans = policy.DefaultTable()
	}
	return &Server{
		coordinator: deps.Coordinator,
		forecasts:   deps.Forecasts,
		plans:       deps.Plans,
		counter:     deps.Counter,
		letters:     deps.Letters,
		series:      deps.Series,
		pinger:      deps.Pinger,
		config:      config,
		log:         log,
		startTime:   time.Now(),
	}, nil
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/forecast", s.handleForecast)
		r.Post("/forecast/select", s.handleForecastSelect)
		r.Get("/usage/{orgID}", s.handleUsage)
		r.Get("/deadletters", s.handleDeadLetters)
		r.Get("/metrics/{orgID}/keys", s.handleMetricKeys)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      http.MaxBytesHandler(s.Router(), s.config.MaxRequestSize),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Info().
		Int("port", s.config.Port).
		Str("version", version).
		Msg("Starting IntentVision API server")

	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.log.Info().Msg("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "intentvision-api",
		"version": version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.respondError(w, http.StatusServiceUnavailable, "database not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"version": version,
		"service": "intentvision-api",
	})
}

// =============================================================================
// INGESTION
// =============================================================================

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req v1.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" {
		s.respondError(w, http.StatusBadRequest, "org_id is required")
		return
	}
	if len(req.RawData) == 0 {
		s.respondError(w, http.StatusBadRequest, "raw_data is required")
		return
	}

	resp, err := s.coordinator.Ingest(r.Context(), req)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "ingestion failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// =============================================================================
// FORECASTING
// =============================================================================

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req v1.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" || req.MetricKey == "" {
		s.respondError(w, http.StatusBadRequest, "org_id and metric_key are required")
		return
	}

	if len(req.History) == 0 {
		if s.series == nil {
			s.respondError(w, http.StatusBadRequest, "history is required")
			return
		}
		points, err := s.series.GetSeries(r.Context(), req.OrgID, req.MetricKey, time.Time{})
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to load series: "+err.Error())
			return
		}
		if len(points) == 0 {
			s.respondError(w, http.StatusNotFound, "no history for metric: "+req.MetricKey)
			return
		}
		req.History = points
	}

	result, err := s.forecasts.Forecast(r.Context(), req)
	if err != nil {
		var paramErr *routing.ParamError
		if errors.As(err, &paramErr) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, "forecast failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleForecastSelect runs the routing decision without executing a
// forecast or consuming quota.
func (s *Server) handleForecastSelect(w http.ResponseWriter, r *http.Request) {
	var req v1.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" {
		s.respondError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	sel, err := s.forecasts.Select(r.Context(), req)
	if err != nil {
		var paramErr *routing.ParamError
		if errors.As(err, &paramErr) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, "selection failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sel)
}

// =============================================================================
// USAGE
// =============================================================================

type usageBackend struct {
	Used      int `json:"used"`
	Remaining int `json:"remaining"` // -1 = unlimited
}

type usageResponse struct {
	OrgID    string                      `json:"org_id"`
	Plan     string                      `json:"plan"`
	Date     string                      `json:"date"`
	Backends map[v1.Backend]usageBackend `json:"backends"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.counter == nil {
		s.respondError(w, http.StatusNotImplemented, "usage tracking not configured")
		return
	}
	orgID := chi.URLParam(r, "orgID")
	plan := r.URL.Query().Get("plan")
	if plan == "" {
		plan = "free"
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = usage.DateUTC(time.Now())
	}

	day, err := s.counter.GetDay(r.Context(), orgID, date)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load usage: "+err.Error())
		return
	}

	resp := usageResponse{
		OrgID:    orgID,
		Plan:     plan,
		Date:     date,
		Backends: make(map[v1.Backend]usageBackend, len(v1.Backends())),
	}
	for _, backend := range v1.Backends() {
		used := 0
		if day != nil {
			used = day.Count(backend)
		}
		limit := s.plans.DailyLimit(plan, backend)
		remaining := 0
		switch {
		case limit == policy.LimitUnlimited:
			remaining = -1
		case limit > 0:
			remaining = limit - used
			if remaining < 0 {
				remaining = 0
			}
		}
		resp.Backends[backend] = usageBackend{Used: used, Remaining: remaining}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// =============================================================================
// DEAD LETTERS AND METRICS
// =============================================================================

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.letters == nil {
		s.respondError(w, http.StatusNotImplemented, "dead letter sink not configured")
		return
	}
	q := r.URL.Query()
	filter := deadletter.Filter{
		OrgID:    q.Get("org_id"),
		SourceID: q.Get("source_id"),
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	entries, err := s.letters.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list dead letters: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleMetricKeys(w http.ResponseWriter, r *http.Request) {
	if s.series == nil {
		s.respondError(w, http.StatusNotImplemented, "metric store not configured")
		return
	}
	orgID := chi.URLParam(r, "orgID")
	keys, err := s.series.ListMetricKeys(r.Context(), orgID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list metric keys: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"org_id": orgID,
		"keys":   keys,
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
