package routing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// Per-call base credits and complexity caps per backend. Complexity grows
// with the history and horizon of the request and is capped so a pathological
// request cannot run the meter.
const (
	nixtlaBaseCredits = 1
	nixtlaMaxFactor   = 2.0

	llmBaseCredits = 5
	llmMaxFactor   = 3.0
)

var creditUSD = decimal.NewFromFloat(0.01)

// EstimateCost prices one backend call. Deterministic, pure function of
// backend, history size, and horizon.
func EstimateCost(backend api.Backend, historyPoints, horizonDays int) api.CostEstimate {
	switch backend {
	case api.BackendNixtla:
		complexity := 1 + float64(historyPoints)/1000*0.1 + float64(horizonDays)/100*0.05
		return creditCost(nixtlaBaseCredits, math.Min(complexity, nixtlaMaxFactor))
	case api.BackendLLM:
		complexity := 1 + float64(historyPoints)/500*0.2 + float64(horizonDays)/50*0.1
		return creditCost(llmBaseCredits, math.Min(complexity, llmMaxFactor))
	default:
		// statistical runs locally and is free
		return api.CostEstimate{Credits: 0, USDEstimate: decimal.Zero}
	}
}

func creditCost(base int, complexity float64) api.CostEstimate {
	credits := int(math.Ceil(float64(base) * complexity))
	return api.CostEstimate{
		Credits:     credits,
		USDEstimate: decimal.NewFromInt(int64(credits)).Mul(creditUSD),
	}
}
