package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/intent-solutions/intentvision/internal/validate"
	"github.com/intent-solutions/intentvision/pkg/api"
)

// Statistical is the free local backend: linear trend over the observed
// history with a variance band. Good enough for the default tier; the paid
// backends exist for everything it is not good enough for.
type Statistical struct{}

// NewStatistical creates the statistical backend.
func NewStatistical() *Statistical { return &Statistical{} }

func (s *Statistical) Name() api.Backend { return api.BackendStatistical }

func (s *Statistical) Forecast(ctx context.Context, req Request) (*Result, error) {
	if len(req.History) == 0 {
		return nil, fmt.Errorf("statistical backend needs at least one history point")
	}
	if req.HorizonDays <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", req.HorizonDays)
	}

	level, slope := fitTrend(req.History)
	band := residualSpread(req.History, level, slope)

	lastTS, err := validate.ParseTimestamp(req.History[len(req.History)-1].Timestamp)
	if err != nil {
		lastTS = time.Now().UTC()
	}

	n := float64(len(req.History))
	points := make([]api.ForecastPoint, 0, req.HorizonDays)
	for d := 1; d <= req.HorizonDays; d++ {
		value := level + slope*(n-1+float64(d))
		points = append(points, api.ForecastPoint{
			Timestamp: lastTS.AddDate(0, 0, d).UTC().Format(time.RFC3339),
			Value:     value,
			Lower:     value - band,
			Upper:     value + band,
		})
	}
	return &Result{Points: points, Model: "linear-trend"}, nil
}

// fitTrend runs an ordinary least-squares fit over (index, value).
func fitTrend(history []api.SeriesPoint) (level, slope float64) {
	n := float64(len(history))
	if n == 1 {
		return history[0].Value, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range history {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	level = (sumY - slope*sumX) / n
	return level, slope
}

// residualSpread is two standard deviations of the fit residuals, the width
// of the confidence band.
func residualSpread(history []api.SeriesPoint, level, slope float64) float64 {
	if len(history) < 2 {
		return math.Abs(level) * 0.1
	}
	var ss float64
	for i, p := range history {
		r := p.Value - (level + slope*float64(i))
		ss += r * r
	}
	return 2 * math.Sqrt(ss/float64(len(history)))
}
