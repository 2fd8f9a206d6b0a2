// Package forecast runs forecast requests: the router picks a backend, the
// backend produces the series, and usage is metered only after a successful
// run. Backends are black boxes behind a narrow interface; this package does
// not care how predictions are made.
package forecast

import (
	"context"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// Request is the input handed to a backend after routing.
type Request struct {
	OrgID       string
	MetricKey   string
	History     []api.SeriesPoint
	HorizonDays int
}

// Result is a backend's raw output.
type Result struct {
	Points []api.ForecastPoint
	Model  string
}

// Backend is one interchangeable forecasting implementation.
type Backend interface {
	Name() api.Backend
	Forecast(ctx context.Context, req Request) (*Result, error)
}
