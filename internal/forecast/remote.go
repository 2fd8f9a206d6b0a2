package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// RemoteConfig configures an HTTP-backed forecast backend.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// remote is the shared client for externally hosted backends. The provider
// is a black box: we post the series and the horizon, it returns the
// predicted points.
type remote struct {
	name       api.Backend
	model      string
	cfg        RemoteConfig
	httpClient *http.Client
}

// NewNixtla creates the TimeGPT-style hosted backend client.
func NewNixtla(cfg RemoteConfig) Backend {
	return newRemote(api.BackendNixtla, "timegpt", cfg)
}

// NewLLM creates the LLM forecast backend client.
func NewLLM(cfg RemoteConfig) Backend {
	return newRemote(api.BackendLLM, "llm-forecaster", cfg)
}

func newRemote(name api.Backend, model string, cfg RemoteConfig) Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &remote{
		name:       name,
		model:      model,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *remote) Name() api.Backend { return r.name }

type remoteForecastRequest struct {
	MetricKey   string            `json:"metric_key"`
	Series      []api.SeriesPoint `json:"series"`
	HorizonDays int               `json:"horizon_days"`
	Model       string            `json:"model"`
}

type remoteForecastResponse struct {
	Points []api.ForecastPoint `json:"points"`
	Model  string              `json:"model"`
	Error  string              `json:"error,omitempty"`
}

func (r *remote) Forecast(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(remoteForecastRequest{
		MetricKey:   req.MetricKey,
		Series:      req.History,
		HorizonDays: req.HorizonDays,
		Model:       r.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", r.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/v1/forecast", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", r.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", r.cfg.APIKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s backend unreachable: %w", r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s backend returned %d: %s", r.name, resp.StatusCode, payload)
	}

	var out remoteForecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", r.name, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s backend error: %s", r.name, out.Error)
	}

	model := out.Model
	if model == "" {
		model = r.model
	}
	return &Result{Points: out.Points, Model: model}, nil
}
