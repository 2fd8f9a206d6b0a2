package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/intent-solutions/intentvision/internal/routing"
	"github.com/intent-solutions/intentvision/internal/usage"
	"github.com/intent-solutions/intentvision/pkg/api"
)

// Service ties routing, execution, and usage metering together.
type Service struct {
	router   *routing.Router
	counter  *usage.Counter
	backends map[api.Backend]Backend
	log      zerolog.Logger
}

// NewService creates the forecast service. Every registered backend must be
// routable; the statistical backend must always be present since it is the
// universal fallback.
func NewService(router *routing.Router, counter *usage.Counter, backends []Backend, log zerolog.Logger) (*Service, error) {
	byName := make(map[api.Backend]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}
	if _, ok := byName[api.BackendStatistical]; !ok {
		return nil, fmt.Errorf("statistical backend is required")
	}
	return &Service{router: router, counter: counter, backends: byName, log: log}, nil
}

// Forecast routes the request, runs the selected backend, and meters usage.
// The increment happens only after the backend call succeeds, so a failed
// forecast does not consume quota. A usage-store error after a successful
// run is fatal: the caller should treat the call as uncommitted and retry.
func (s *Service) Forecast(ctx context.Context, req api.ForecastRequest) (*api.ForecastResult, error) {
	sel, err := s.router.SelectBackend(ctx, routing.Selection{
		OrgID:            req.OrgID,
		Plan:             req.Plan,
		MetricID:         req.MetricKey,
		RequestedBackend: req.Backend,
		HistoryPoints:    len(req.History),
		HorizonDays:      req.HorizonDays,
	})
	if err != nil {
		return nil, err
	}

	backend, ok := s.backends[sel.Backend]
	if !ok {
		return nil, fmt.Errorf("selected backend %s is not configured", sel.Backend)
	}

	out, err := backend.Forecast(ctx, Request{
		OrgID:       req.OrgID,
		MetricKey:   req.MetricKey,
		History:     req.History,
		HorizonDays: req.HorizonDays,
	})
	if err != nil {
		return nil, fmt.Errorf("%s forecast failed: %w", sel.Backend, err)
	}

	if err := s.counter.Increment(ctx, req.OrgID, sel.Backend); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("org_id", req.OrgID).
		Str("metric_key", req.MetricKey).
		Str("backend", string(sel.Backend)).
		Str("warning", sel.Warning).
		Int("points", len(out.Points)).
		Msg("forecast generated")

	return &api.ForecastResult{
		MetricKey:   req.MetricKey,
		Backend:     sel.Backend,
		Model:       out.Model,
		Points:      out.Points,
		Selection:   sel,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Select exposes the routing decision without executing a forecast. Used by
// the cost-preview endpoint and the CLI.
func (s *Service) Select(ctx context.Context, req api.ForecastRequest) (*api.SelectionResult, error) {
	return s.router.SelectBackend(ctx, routing.Selection{
		OrgID:            req.OrgID,
		Plan:             req.Plan,
		MetricID:         req.MetricKey,
		RequestedBackend: req.Backend,
		HistoryPoints:    len(req.History),
		HorizonDays:      req.HorizonDays,
	})
}
