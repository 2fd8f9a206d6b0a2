// Package routing selects a forecast backend per request, combining the plan
// entitlement table, live usage counters, and the cost model. Entitlement
// denial and quota exhaustion degrade to the free statistical backend with a
// warning; only out-of-bounds parameters fail the request.
package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/intent-solutions/intentvision/internal/policy"
	"github.com/intent-solutions/intentvision/internal/usage"
	"github.com/intent-solutions/intentvision/pkg/api"
)

// ParamError marks a forecast request whose history/horizon fall outside the
// plan bounds. Fatal to the caller; no fallback applies.
type ParamError struct {
	Plan string
	Err  error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid forecast parameters for plan %s: %v", e.Plan, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// Selection is the input to one routing decision.
type Selection struct {
	OrgID            string
	Plan             string
	MetricID         string
	RequestedBackend api.Backend // empty = use the plan default
	HistoryPoints    int
	HorizonDays      int
}

// Router decides which backend serves a forecast request. It never
// increments usage itself; the caller increments only after the forecast
// actually ran, so failed forecasts do not consume quota.
type Router struct {
	policy  *policy.Table
	counter *usage.Counter
	now     func() time.Time
}

// NewRouter creates a router over a plan table and a usage counter.
func NewRouter(table *policy.Table, counter *usage.Counter) *Router {
	return &Router{policy: table, counter: counter, now: time.Now}
}

// SelectBackend runs the decision procedure. The quota read and the caller's
// later increment are separate operations, so remaining counts are a hint,
// not a reservation: this is best-effort rate limiting, not an exact cap.
func (r *Router) SelectBackend(ctx context.Context, sel Selection) (*api.SelectionResult, error) {
	if err := r.policy.ValidateForecastParams(sel.Plan, sel.HistoryPoints, sel.HorizonDays); err != nil {
		return nil, &ParamError{Plan: sel.Plan, Err: err}
	}

	target := sel.RequestedBackend
	explicit := target != ""
	if !explicit {
		target = r.policy.DefaultBackend(sel.Plan)
	}

	if !r.policy.IsBackendAllowed(sel.Plan, target) {
		cost := EstimateCost(api.BackendStatistical, sel.HistoryPoints, sel.HorizonDays)
		return &api.SelectionResult{
			Backend:      api.BackendStatistical,
			Rationale:    fmt.Sprintf("backend %s is not available on plan %s; using statistical", target, sel.Plan),
			CostEstimate: &cost,
			Fallback:     api.BackendStatistical,
			Warning:      fmt.Sprintf("upgrade your plan to use the %s backend", target),
		}, nil
	}

	if target != api.BackendStatistical && r.policy.HasUsageLimit(sel.Plan, target) {
		limit := r.policy.DailyLimit(sel.Plan, target)
		count, err := r.counter.GetCount(ctx, sel.OrgID, target, usage.DateUTC(r.now()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s usage: %w", target, err)
		}
		if limit-count <= 0 {
			cost := EstimateCost(api.BackendStatistical, sel.HistoryPoints, sel.HorizonDays)
			return &api.SelectionResult{
				Backend:      api.BackendStatistical,
				Rationale:    fmt.Sprintf("daily %s quota exhausted (%d of %d used); using statistical", target, count, limit),
				CostEstimate: &cost,
				Fallback:     api.BackendStatistical,
				Warning:      fmt.Sprintf("daily limit of %d %s forecasts reached; quota resets at midnight UTC", limit, target),
			}, nil
		}
	}

	rationale := fmt.Sprintf("plan %s default backend", sel.Plan)
	if explicit {
		rationale = fmt.Sprintf("backend %s requested explicitly", target)
	}
	cost := EstimateCost(target, sel.HistoryPoints, sel.HorizonDays)
	return &api.SelectionResult{
		Backend:      target,
		Rationale:    rationale,
		CostEstimate: &cost,
	}, nil
}

// Remaining reports the quota left for one backend today: the remaining
// count for limited backends, -1 for unlimited, 0 for disabled or
// not-allowed backends.
func (r *Router) Remaining(ctx context.Context, orgID, plan string, backend api.Backend) (int, error) {
	if !r.policy.IsBackendAllowed(plan, backend) {
		return 0, nil
	}
	limit := r.policy.DailyLimit(plan, backend)
	if limit == policy.LimitUnlimited {
		return -1, nil
	}
	count, err := r.counter.GetCount(ctx, orgID, backend, usage.DateUTC(r.now()))
	if err != nil {
		return 0, err
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
