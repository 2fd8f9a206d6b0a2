package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions/intentvision/internal/deadletter"
	"github.com/intent-solutions/intentvision/internal/docstore"
	"github.com/intent-solutions/intentvision/internal/forecast"
	"github.com/intent-solutions/intentvision/internal/idempotency"
	"github.com/intent-solutions/intentvision/internal/ingest"
	"github.com/intent-solutions/intentvision/internal/ingest/parser"
	"github.com/intent-solutions/intentvision/internal/policy"
	"github.com/intent-solutions/intentvision/internal/routing"
	"github.com/intent-solutions/intentvision/internal/usage"
	v1 "github.com/intent-solutions/intentvision/pkg/api"
)

type fakeSeries struct {
	points map[string][]v1.SeriesPoint
}

func (f *fakeSeries) GetSeries(ctx context.Context, orgID, metricKey string, since time.Time) ([]v1.SeriesPoint, error) {
	return f.points[orgID+"/"+metricKey], nil
}

func (f *fakeSeries) ListMetricKeys(ctx context.Context, orgID string) ([]string, error) {
	var keys []string
	for k := range f.points {
		keys = append(keys, k)
	}
	return keys, nil
}

func newTestServer(t *testing.T) (*Server, deadletter.Sink) {
	t.Helper()

	docs := docstore.NewMemory()
	idem := idempotency.NewStore(docs, idempotency.DefaultTTL)
	sink := deadletter.NewMemorySink()
	metrics := ingest.NewMemoryMetricStore()
	coordinator := ingest.NewCoordinator(idem, sink, metrics, parser.DefaultRegistry(), zerolog.Nop())

	table := policy.DefaultTable()
	counter := usage.NewCounter(docs)
	router := routing.NewRouter(table, counter)
	svc, err := forecast.NewService(router, counter, []forecast.Backend{forecast.NewStatistical()}, zerolog.Nop())
	require.NoError(t, err)

	series := &fakeSeries{points: map[string][]v1.SeriesPoint{}}
	for i := 0; i < 14; i++ {
		series.points["org-1/mrr"] = append(series.points["org-1/mrr"], v1.SeriesPoint{
			Timestamp: time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
			Value:     100 + float64(i),
		})
	}

	srv, err := NewServer(Deps{
		Coordinator: coordinator,
		Forecasts:   svc,
		Plans:       table,
		Counter:     counter,
		Letters:     sink,
		Series:      series,
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	return srv, sink
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	req := v1.IngestRequest{
		OrgID:     "org-1",
		RequestID: "req-1",
		RawData: []v1.RawMetricData{
			{
				Payload:    json.RawMessage(`{"metric_key":"mrr","timestamp":"2026-08-30T00:00:00Z","value":1250.5}`),
				SourceID:   "stripe-main",
				SourceType: "webhook",
				ReceivedAt: time.Now().UTC(),
			},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/ingest", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp v1.IngestionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Stats.Processed)
	require.NotNil(t, resp.Batch)
	assert.Len(t, resp.Batch.Metrics, 1)
}

func TestIngestEndpointRejectsMissingOrg(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/ingest", v1.IngestRequest{
		RawData: []v1.RawMetricData{{SourceType: "webhook"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastEndpointWithStoredHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/forecast", v1.ForecastRequest{
		OrgID:       "org-1",
		Plan:        "free",
		MetricKey:   "mrr",
		HorizonDays: 7,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result v1.ForecastResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, v1.BackendStatistical, result.Backend)
	assert.Len(t, result.Points, 7)
}

func TestForecastEndpointNoHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/forecast", v1.ForecastRequest{
		OrgID:       "org-1",
		Plan:        "free",
		MetricKey:   "unknown-metric",
		HorizonDays: 7,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastEndpointParamBounds(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	// Free plan caps the horizon at 30 days.
	rec := doJSON(t, h, http.MethodPost, "/api/v1/forecast", v1.ForecastRequest{
		OrgID:       "org-1",
		Plan:        "free",
		MetricKey:   "mrr",
		HorizonDays: 90,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestForecastSelectEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	history := make([]v1.SeriesPoint, 10)
	for i := range history {
		history[i] = v1.SeriesPoint{
			Timestamp: fmt.Sprintf("2026-08-%02dT00:00:00Z", i+1),
			Value:     float64(i),
		}
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/forecast/select", v1.ForecastRequest{
		OrgID:       "org-1",
		Plan:        "free",
		MetricKey:   "mrr",
		Backend:     v1.BackendNixtla,
		HorizonDays: 7,
		History:     history,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sel v1.SelectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, v1.BackendStatistical, sel.Backend)
	assert.Equal(t, v1.BackendStatistical, sel.Fallback)
	assert.NotEmpty(t, sel.Warning)
}

func TestUsageEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/usage/org-1?plan=starter", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp usageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "org-1", resp.OrgID)
	assert.Equal(t, -1, resp.Backends[v1.BackendStatistical].Remaining)
	assert.Equal(t, 10, resp.Backends[v1.BackendNixtla].Remaining)
	assert.Equal(t, 0, resp.Backends[v1.BackendLLM].Remaining)
}

func TestDeadLettersEndpoint(t *testing.T) {
	srv, sink := newTestServer(t)
	h := srv.Router()

	entry := deadletter.NewEntry("org-1", v1.RawMetricData{
		Payload:    json.RawMessage(`{"bad":true}`),
		SourceID:   "stripe-main",
		SourceType: "webhook",
	}, 0, "value is NaN")
	require.NoError(t, sink.Record(context.Background(), entry))

	rec := doJSON(t, h, http.MethodGet, "/api/v1/deadletters?org_id=org-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []deadletter.Entry `json:"entries"`
		Count   int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "value is NaN", resp.Entries[0].Reason)
}
