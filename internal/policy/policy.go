// Package policy holds the static per-plan backend entitlement table:
// which forecast backends a plan tier may use, its daily limits, and the
// bounds on forecast parameters. Pure lookups, no I/O at runtime.
package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// Daily limit sentinel values.
const (
	LimitUnlimited = 0  // no daily cap
	LimitDisabled  = -1 // backend switched off for the plan
)

// PlanLimits is the entitlement row for one plan tier.
type PlanLimits struct {
	AllowedBackends  []api.Backend       `json:"allowedBackends"`
	DefaultBackend   api.Backend         `json:"defaultBackend"`
	DailyLimits      map[api.Backend]int `json:"dailyLimits"`
	MaxHistoryPoints int                 `json:"maxHistoryPoints"`
	MaxHorizonDays   int                 `json:"maxHorizonDays"`
}

// Table maps plan ids to their limits. Loaded once at startup, read-only
// afterwards; new plans are configuration, not code.
type Table struct {
	plans map[string]PlanLimits
}

// DefaultTable returns the built-in plan tiers.
func DefaultTable() *Table {
	return &Table{plans: map[string]PlanLimits{
		"free": {
			AllowedBackends: []api.Backend{api.BackendStatistical},
			DefaultBackend:  api.BackendStatistical,
			DailyLimits: map[api.Backend]int{
				api.BackendStatistical: LimitUnlimited,
				api.BackendNixtla:      LimitDisabled,
				api.BackendLLM:         LimitDisabled,
			},
			MaxHistoryPoints: 500,
			MaxHorizonDays:   30,
		},
		"starter": {
			AllowedBackends: []api.Backend{api.BackendStatistical, api.BackendNixtla},
			DefaultBackend:  api.BackendStatistical,
			DailyLimits: map[api.Backend]int{
				api.BackendStatistical: LimitUnlimited,
				api.BackendNixtla:      10,
				api.BackendLLM:         LimitDisabled,
			},
			MaxHistoryPoints: 2000,
			MaxHorizonDays:   90,
		},
		"pro": {
			AllowedBackends: []api.Backend{api.BackendStatistical, api.BackendNixtla, api.BackendLLM},
			DefaultBackend:  api.BackendNixtla,
			DailyLimits: map[api.Backend]int{
				api.BackendStatistical: LimitUnlimited,
				api.BackendNixtla:      100,
				api.BackendLLM:         25,
			},
			MaxHistoryPoints: 10000,
			MaxHorizonDays:   365,
		},
		"enterprise": {
			AllowedBackends: []api.Backend{api.BackendStatistical, api.BackendNixtla, api.BackendLLM},
			DefaultBackend:  api.BackendNixtla,
			DailyLimits: map[api.Backend]int{
				api.BackendStatistical: LimitUnlimited,
				api.BackendNixtla:      LimitUnlimited,
				api.BackendLLM:         LimitUnlimited,
			},
			MaxHistoryPoints: 50000,
			MaxHorizonDays:   730,
		},
	}}
}

// LoadFile reads a plan table override from a JSON file keyed by plan id.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan table: %w", err)
	}
	var plans map[string]PlanLimits
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("failed to parse plan table: %w", err)
	}
	for id, p := range plans {
		if p.DefaultBackend == "" || !p.DefaultBackend.Valid() {
			return nil, fmt.Errorf("plan %s: invalid default backend %q", id, p.DefaultBackend)
		}
	}
	return &Table{plans: plans}, nil
}

// Limits returns the row for a plan. Unknown plans resolve to "free", the
// conservative default.
func (t *Table) Limits(plan string) PlanLimits {
	if p, ok := t.plans[plan]; ok {
		return p
	}
	return t.plans["free"]
}

// Plans lists the configured plan ids.
func (t *Table) Plans() []string {
	out := make([]string, 0, len(t.plans))
	for id := range t.plans {
		out = append(out, id)
	}
	return out
}

// IsBackendAllowed reports whether the plan may use the backend. A backend
// with a disabled daily limit counts as not allowed even if listed.
func (t *Table) IsBackendAllowed(plan string, backend api.Backend) bool {
	p := t.Limits(plan)
	if t.DailyLimit(plan, backend) == LimitDisabled {
		return false
	}
	for _, b := range p.AllowedBackends {
		if b == backend {
			return true
		}
	}
	return false
}

// DefaultBackend returns the plan's default backend.
func (t *Table) DefaultBackend(plan string) api.Backend {
	return t.Limits(plan).DefaultBackend
}

// DailyLimit returns the per-day cap for the backend on the plan:
// LimitUnlimited, a positive integer, or LimitDisabled. Backends absent from
// the row are disabled.
func (t *Table) DailyLimit(plan string, backend api.Backend) int {
	limit, ok := t.Limits(plan).DailyLimits[backend]
	if !ok {
		return LimitDisabled
	}
	return limit
}

// HasUsageLimit is true iff the backend has a positive daily cap on the plan.
func (t *Table) HasUsageLimit(plan string, backend api.Backend) bool {
	return t.DailyLimit(plan, backend) > 0
}

// ValidateForecastParams checks history/horizon against the plan bounds,
// independent of backend choice.
func (t *Table) ValidateForecastParams(plan string, historyPoints, horizonDays int) error {
	p := t.Limits(plan)
	if historyPoints > p.MaxHistoryPoints {
		return fmt.Errorf("history_points %d exceeds plan limit of %d", historyPoints, p.MaxHistoryPoints)
	}
	if horizonDays > p.MaxHorizonDays {
		return fmt.Errorf("horizon_days %d exceeds plan limit of %d", horizonDays, p.MaxHorizonDays)
	}
	return nil
}
