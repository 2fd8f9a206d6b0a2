package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions/intentvision/internal/docstore"
	"github.com/intent-solutions/intentvision/internal/policy"
	"github.com/intent-solutions/intentvision/internal/usage"
	"github.com/intent-solutions/intentvision/pkg/api"
)

func newRouter() (*Router, *usage.Counter) {
	counter := usage.NewCounter(docstore.NewMemory())
	return NewRouter(policy.DefaultTable(), counter), counter
}

func TestSelectPlanDefaultWithCost(t *testing.T) {
	// plan allowing nixtla, no explicit request, 1000 points over 100 days:
	// complexity 1.15, credits ceil(1*1.15)=2, usd 0.02
	router, _ := newRouter()

	sel, err := router.SelectBackend(context.Background(), Selection{
		OrgID:         "org-1",
		Plan:          "pro",
		MetricID:      "revenue.mrr",
		HistoryPoints: 1000,
		HorizonDays:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, api.BackendNixtla, sel.Backend)
	assert.Empty(t, sel.Fallback)
	assert.Empty(t, sel.Warning)
	assert.Contains(t, sel.Rationale, "default")
	require.NotNil(t, sel.CostEstimate)
	assert.Equal(t, 2, sel.CostEstimate.Credits)
	assert.Equal(t, "0.02", sel.CostEstimate.USDEstimate.StringFixed(2))
}

func TestSelectDisallowedBackendFallsBack(t *testing.T) {
	// free plan has nixtla disabled: statistical as both selection and
	// fallback, warning present, zero credits
	router, _ := newRouter()

	sel, err := router.SelectBackend(context.Background(), Selection{
		OrgID:            "org-1",
		Plan:             "free",
		RequestedBackend: api.BackendNixtla,
		HistoryPoints:    100,
		HorizonDays:      7,
	})
	require.NoError(t, err)

	assert.Equal(t, api.BackendStatistical, sel.Backend)
	assert.Equal(t, api.BackendStatistical, sel.Fallback)
	assert.NotEmpty(t, sel.Warning)
	assert.Contains(t, sel.Rationale, "nixtla")
	require.NotNil(t, sel.CostEstimate)
	assert.Equal(t, 0, sel.CostEstimate.Credits)
	assert.True(t, sel.CostEstimate.USDEstimate.IsZero())
}

func TestSelectQuotaExhaustedFallsBack(t *testing.T) {
	router, counter := newRouter()
	ctx := context.Background()

	// burn the starter plan's 10 daily nixtla calls
	for i := 0; i < 10; i++ {
		require.NoError(t, counter.Increment(ctx, "org-1", api.BackendNixtla))
	}

	sel, err := router.SelectBackend(ctx, Selection{
		OrgID:            "org-1",
		Plan:             "starter",
		RequestedBackend: api.BackendNixtla,
		HistoryPoints:    100,
		HorizonDays:      7,
	})
	require.NoError(t, err)

	assert.Equal(t, api.BackendStatistical, sel.Backend)
	assert.Equal(t, api.BackendStatistical, sel.Fallback)
	assert.Contains(t, sel.Warning, "10")
	assert.Contains(t, sel.Rationale, "quota")

	// another org still has quota
	sel, err = router.SelectBackend(ctx, Selection{
		OrgID:            "org-2",
		Plan:             "starter",
		RequestedBackend: api.BackendNixtla,
		HistoryPoints:    100,
		HorizonDays:      7,
	})
	require.NoError(t, err)
	assert.Equal(t, api.BackendNixtla, sel.Backend)
	assert.Empty(t, sel.Warning)
}

func TestSelectUnlimitedNeverFallsBack(t *testing.T) {
	router, counter := newRouter()
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		require.NoError(t, counter.Increment(ctx, "org-1", api.BackendNixtla))
	}

	sel, err := router.SelectBackend(ctx, Selection{
		OrgID:            "org-1",
		Plan:             "enterprise",
		RequestedBackend: api.BackendNixtla,
		HistoryPoints:    100,
		HorizonDays:      7,
	})
	require.NoError(t, err)
	assert.Equal(t, api.BackendNixtla, sel.Backend)
	assert.Empty(t, sel.Fallback)

	remaining, err := router.Remaining(ctx, "org-1", "enterprise", api.BackendNixtla)
	require.NoError(t, err)
	assert.Equal(t, -1, remaining)
}

func TestSelectParamErrorIsFatal(t *testing.T) {
	router, _ := newRouter()

	_, err := router.SelectBackend(context.Background(), Selection{
		OrgID:         "org-1",
		Plan:          "free",
		HistoryPoints: 501,
		HorizonDays:   7,
	})
	require.Error(t, err)
	var paramErr *ParamError
	assert.ErrorAs(t, err, &paramErr)
}

func TestRemaining(t *testing.T) {
	router, counter := newRouter()
	ctx := context.Background()

	remaining, err := router.Remaining(ctx, "org-1", "starter", api.BackendNixtla)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	for i := 0; i < 4; i++ {
		require.NoError(t, counter.Increment(ctx, "org-1", api.BackendNixtla))
	}
	remaining, err = router.Remaining(ctx, "org-1", "starter", api.BackendNixtla)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)

	// disabled backend reports no quota at all
	remaining, err = router.Remaining(ctx, "org-1", "free", api.BackendNixtla)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
