package api

import "time"

// IngestRequest is the input to one ingestion call.
type IngestRequest struct {
	OrgID     string          `json:"org_id"`
	RequestID string          `json:"request_id"`
	RawData   []RawMetricData `json:"raw_data"`
	Options   *IngestOptions  `json:"options,omitempty"`
}

// IngestOptions tweaks per-call ingestion behavior.
type IngestOptions struct {
	// SkipCache bypasses the idempotency lookup. Used by replay tooling.
	SkipCache bool `json:"skip_cache,omitempty"`
}

// IngestionItemResult reports the outcome for a single raw item.
type IngestionItemResult struct {
	Index   int              `json:"index"`
	Success bool             `json:"success"`
	Metric  *CanonicalMetric `json:"metric,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// IngestionStats summarizes one ingestion call. Derived from the per-item
// results, never stored on its own.
type IngestionStats struct {
	Received     int   `json:"received"`
	Processed    int   `json:"processed"`
	Failed       int   `json:"failed"`
	Deduplicated int   `json:"deduplicated"`
	DurationMS   int64 `json:"duration_ms"`
}

// IngestionResponse is the full result of an ingestion call. The serialized
// form is what the idempotency store caches, so a retried delivery gets the
// same batch and per-item results back.
type IngestionResponse struct {
	RequestID   string                `json:"request_id"`
	Success     bool                  `json:"success"`
	Batch       *MetricBatch          `json:"batch,omitempty"`
	Results     []IngestionItemResult `json:"results"`
	Stats       IngestionStats        `json:"stats"`
	ProcessedAt time.Time             `json:"processed_at"`
}
