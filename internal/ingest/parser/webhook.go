package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// WebhookParser handles the generic JSON webhook connector: the payload is
// either a single point object or an array of them.
type WebhookParser struct{}

// webhookPoint is the wire form of one webhook data point. Value is a
// pointer so a missing or null value survives decoding and reaches the
// validator as NaN rather than a misleading zero.
type webhookPoint struct {
	MetricKey  string            `json:"metric_key"`
	Timestamp  string            `json:"timestamp"`
	Value      *float64          `json:"value"`
	Dimensions map[string]string `json:"dimensions"`
}

func (p *WebhookParser) Parse(raw api.RawMetricData, orgID string, ingestedAt time.Time) ([]api.CanonicalMetric, error) {
	points, err := decodePoints(raw.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	metrics := make([]api.CanonicalMetric, 0, len(points))
	for _, pt := range points {
		value := math.NaN()
		if pt.Value != nil {
			value = *pt.Value
		}
		dims := pt.Dimensions
		if dims == nil {
			dims = map[string]string{}
		}
		metrics = append(metrics, api.CanonicalMetric{
			OrgID:      orgID,
			MetricKey:  pt.MetricKey,
			Timestamp:  pt.Timestamp,
			Value:      value,
			Dimensions: dims,
			Provenance: &api.Provenance{
				SourceID:   raw.SourceID,
				IngestedAt: ingestedAt,
			},
		})
	}
	return metrics, nil
}

func decodePoints(payload []byte) ([]webhookPoint, error) {
	var single webhookPoint
	if err := json.Unmarshal(payload, &single); err == nil {
		return []webhookPoint{single}, nil
	}

	var many []webhookPoint
	if err := json.Unmarshal(payload, &many); err != nil {
		return nil, err
	}
	return many, nil
}
