package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// Backend identifies a forecast backend implementation.
type Backend string

const (
	BackendStatistical Backend = "statistical"
	BackendNixtla      Backend = "nixtla"
	BackendLLM         Backend = "llm"
)

// Backends lists every known backend in a stable order.
func Backends() []Backend {
	return []Backend{BackendStatistical, BackendNixtla, BackendLLM}
}

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendStatistical, BackendNixtla, BackendLLM:
		return true
	}
	return false
}

// CostEstimate is the abstract billing cost of one backend call.
type CostEstimate struct {
	Credits     int             `json:"credits"`
	USDEstimate decimal.Decimal `json:"usdEstimate"`
}

// SelectionResult explains which backend was chosen and why. Ephemeral,
// returned to the caller alongside the forecast, never persisted.
type SelectionResult struct {
	Backend      Backend       `json:"backend"`
	Rationale    string        `json:"rationale"`
	CostEstimate *CostEstimate `json:"costEstimate,omitempty"`
	Fallback     Backend       `json:"fallback,omitempty"`
	Warning      string        `json:"warning,omitempty"`
}

// SeriesPoint is one observed value of a metric series.
type SeriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// ForecastPoint is one predicted value with its confidence band.
type ForecastPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// ForecastRequest asks for a forecast of one metric.
type ForecastRequest struct {
	OrgID       string        `json:"org_id"`
	Plan        string        `json:"plan"`
	MetricKey   string        `json:"metric_key"`
	Backend     Backend       `json:"backend,omitempty"` // empty = plan default
	HorizonDays int           `json:"horizon_days"`
	History     []SeriesPoint `json:"history"`
}

// ForecastResult is the forecast plus the routing decision that produced it.
type ForecastResult struct {
	MetricKey   string           `json:"metric_key"`
	Backend     Backend          `json:"backend"`
	Model       string           `json:"model,omitempty"`
	Points      []ForecastPoint  `json:"points"`
	Selection   *SelectionResult `json:"selection"`
	GeneratedAt time.Time        `json:"generated_at"`
}
