// Package api defines the shared contracts between the ingestion pipeline,
// the forecast routing layer, and the external HTTP/CLI surfaces.
package api

import (
	"encoding/json"
	"time"
)

// RawMetricData is a single raw item as delivered by a connector.
// Immutable once received; the payload stays opaque until a source-specific
// parser turns it into canonical metrics.
type RawMetricData struct {
	Payload    json.RawMessage   `json:"payload"`
	SourceID   string            `json:"source_id"`
	SourceType string            `json:"source_type"` // webhook, csv, stripe, posthog
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Provenance records where a canonical metric came from.
type Provenance struct {
	SourceID   string    `json:"source_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// CanonicalMetric is the normalized time-series point all sources are
// converted into. Timestamp is kept as the ISO-8601 string the source
// supplied; the validator enforces that it parses and carries a time
// component.
type CanonicalMetric struct {
	OrgID      string            `json:"org_id"`
	MetricKey  string            `json:"metric_key"`
	Timestamp  string            `json:"timestamp"`
	Value      float64           `json:"value"`
	Dimensions map[string]string `json:"dimensions"`
	Provenance *Provenance       `json:"provenance,omitempty"`
}

// MetricBatch groups the accepted metrics of one ingestion call.
type MetricBatch struct {
	BatchID   string            `json:"batch_id"`
	OrgID     string            `json:"org_id"`
	Metrics   []CanonicalMetric `json:"metrics"`
	CreatedAt time.Time         `json:"created_at"`
}
