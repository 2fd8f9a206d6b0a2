// Package ingest orchestrates the ingestion pipeline: idempotency claim,
// per-item parsing and validation, dead-lettering of rejects, batch
// persistence, and response caching.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intent-solutions/intentvision/internal/deadletter"
	"github.com/intent-solutions/intentvision/internal/idempotency"
	"github.com/intent-solutions/intentvision/internal/ingest/parser"
	"github.com/intent-solutions/intentvision/internal/validate"
	"github.com/intent-solutions/intentvision/pkg/api"
)

// MetricStore persists accepted metric batches.
type MetricStore interface {
	SaveBatch(ctx context.Context, batch *api.MetricBatch) error
}

// Coordinator runs ingestion calls end to end.
type Coordinator struct {
	idem    *idempotency.Store
	sink    deadletter.Sink
	metrics MetricStore
	parsers *parser.Registry
	log     zerolog.Logger
	now     func() time.Time
}

// NewCoordinator wires the pipeline. All handles are passed explicitly.
func NewCoordinator(idem *idempotency.Store, sink deadletter.Sink, metrics MetricStore, parsers *parser.Registry, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		idem:    idem,
		sink:    sink,
		metrics: metrics,
		parsers: parsers,
		log:     log,
		now:     time.Now,
	}
}

// Ingest processes one batch of raw items. A redelivery of byte-identical
// content within the TTL window returns the cached response without
// reprocessing; the stats of that call report the whole batch as
// deduplicated. A store error is fatal to the call and safe to retry.
func (c *Coordinator) Ingest(ctx context.Context, req api.IngestRequest) (*api.IngestionResponse, error) {
	start := c.now()

	key := idempotency.BatchKey(req.OrgID, req.RawData)
	skipCache := req.Options != nil && req.Options.SkipCache

	if !skipCache {
		cached, claimed, err := c.idem.Claim(ctx, key, req.RequestID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return c.cachedResponse(cached, len(req.RawData), start)
		}
	}

	resp, err := c.process(ctx, req, start)
	if err != nil {
		if !skipCache {
			if relErr := c.idem.Release(ctx, key, req.RequestID); relErr != nil {
				c.log.Warn().Err(relErr).Str("key", key).Msg("failed to release idempotency claim")
			}
		}
		return nil, err
	}

	if !skipCache {
		body, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to encode ingestion response: %w", err)
		}
		if err := c.idem.Complete(ctx, key, req.RequestID, body); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Coordinator) process(ctx context.Context, req api.IngestRequest, start time.Time) (*api.IngestionResponse, error) {
	batch := &api.MetricBatch{
		BatchID:   uuid.NewString(),
		OrgID:     req.OrgID,
		CreatedAt: start.UTC(),
	}
	results := make([]api.IngestionItemResult, 0, len(req.RawData))
	failed := 0

	for i, item := range req.RawData {
		candidates, err := c.parsers.Parse(item, req.OrgID, start.UTC())
		if err != nil {
			c.reject(ctx, req.OrgID, item, i, fmt.Sprintf("parse: %v", err))
			results = append(results, api.IngestionItemResult{Index: i, Error: err.Error()})
			failed++
			continue
		}

		accepted, reason := c.validateAll(candidates)
		if reason != "" {
			c.reject(ctx, req.OrgID, item, i, reason)
			results = append(results, api.IngestionItemResult{Index: i, Error: reason})
			failed++
			continue
		}

		batch.Metrics = append(batch.Metrics, accepted...)
		result := api.IngestionItemResult{Index: i, Success: true}
		if len(accepted) > 0 {
			result.Metric = &batch.Metrics[len(batch.Metrics)-len(accepted)]
		}
		results = append(results, result)
	}

	if len(batch.Metrics) > 0 {
		if err := c.metrics.SaveBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to persist metric batch: %w", err)
		}
	}

	processed := len(req.RawData) - failed
	resp := &api.IngestionResponse{
		RequestID: req.RequestID,
		Success:   failed == 0,
		Batch:     batch,
		Results:   results,
		Stats: api.IngestionStats{
			Received:   len(req.RawData),
			Processed:  processed,
			Failed:     failed,
			DurationMS: c.now().Sub(start).Milliseconds(),
		},
		ProcessedAt: c.now().UTC(),
	}

	c.log.Info().
		Str("org_id", req.OrgID).
		Str("request_id", req.RequestID).
		Int("received", len(req.RawData)).
		Int("processed", processed).
		Int("failed", failed).
		Msg("ingestion batch processed")

	return resp, nil
}

// validateAll runs the validator over every candidate of one raw item.
// An item is all-or-nothing: one bad candidate dead-letters the item.
func (c *Coordinator) validateAll(candidates []api.CanonicalMetric) ([]api.CanonicalMetric, string) {
	for i := range candidates {
		if err := validate.Metric(&candidates[i]); err != nil {
			return nil, fmt.Sprintf("validation: %v", err)
		}
	}
	return candidates, ""
}

// reject dead-letters an item. A sink failure is logged and swallowed:
// losing an audit record is preferable to failing the ingestion call.
func (c *Coordinator) reject(ctx context.Context, orgID string, item api.RawMetricData, index int, reason string) {
	entry := deadletter.NewEntry(orgID, item, index, reason)
	if err := c.sink.Record(ctx, entry); err != nil {
		c.log.Warn().
			Err(err).
			Str("org_id", orgID).
			Int("index", index).
			Str("reason", reason).
			Msg("failed to record dead-letter entry")
	}
}

// cachedResponse rebuilds the response of a previous delivery. Batch and
// per-item results come back exactly as first computed; the stats are the
// current call's and report full deduplication.
func (c *Coordinator) cachedResponse(rec *idempotency.Record, received int, start time.Time) (*api.IngestionResponse, error) {
	var resp api.IngestionResponse
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cached ingestion response: %w", err)
	}
	resp.Stats = api.IngestionStats{
		Received:     received,
		Deduplicated: received,
		DurationMS:   c.now().Sub(start).Milliseconds(),
	}
	return &resp, nil
}
