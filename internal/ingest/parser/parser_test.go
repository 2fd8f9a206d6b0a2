package parser

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions/intentvision/pkg/api"
)

var ingestedAt = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestWebhookParserSingleObject(t *testing.T) {
	raw := api.RawMetricData{
		SourceID:   "src-1",
		SourceType: "webhook",
		Payload:    []byte(`{"metric_key":"signups","timestamp":"2026-08-30T10:00:00Z","value":12,"dimensions":{"region":"eu"}}`),
	}

	metrics, err := (&WebhookParser{}).Parse(raw, "org-1", ingestedAt)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, "org-1", m.OrgID)
	assert.Equal(t, "signups", m.MetricKey)
	assert.Equal(t, 12.0, m.Value)
	assert.Equal(t, map[string]string{"region": "eu"}, m.Dimensions)
	require.NotNil(t, m.Provenance)
	assert.Equal(t, "src-1", m.Provenance.SourceID)
	assert.Equal(t, ingestedAt, m.Provenance.IngestedAt)
}

func TestWebhookParserArray(t *testing.T) {
	raw := api.RawMetricData{
		SourceID:   "src-1",
		SourceType: "webhook",
		Payload:    []byte(`[{"metric_key":"a","timestamp":"2026-08-30T10:00:00Z","value":1},{"metric_key":"b","timestamp":"2026-08-30T11:00:00Z","value":2}]`),
	}

	metrics, err := (&WebhookParser{}).Parse(raw, "org-1", ingestedAt)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "a", metrics[0].MetricKey)
	assert.Equal(t, "b", metrics[1].MetricKey)
	// dimensions default to an empty map, not nil
	assert.NotNil(t, metrics[0].Dimensions)
}

func TestWebhookParserNullValueBecomesNaN(t *testing.T) {
	raw := api.RawMetricData{
		SourceID:   "src-1",
		SourceType: "webhook",
		Payload:    []byte(`{"metric_key":"a","timestamp":"2026-08-30T10:00:00Z","value":null}`),
	}

	metrics, err := (&WebhookParser{}).Parse(raw, "org-1", ingestedAt)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.True(t, math.IsNaN(metrics[0].Value))
}

func TestWebhookParserRejectsGarbage(t *testing.T) {
	raw := api.RawMetricData{SourceType: "webhook", Payload: []byte(`not json`)}
	_, err := (&WebhookParser{}).Parse(raw, "org-1", ingestedAt)
	assert.Error(t, err)
}

func TestCSVParserThreeColumns(t *testing.T) {
	raw := api.RawMetricData{
		SourceID:   "src-csv",
		SourceType: "csv",
		Payload:    []byte("metric_key,timestamp,value\nsignups,2026-08-30T10:00:00Z,12.5\nsignups,2026-08-30T11:00:00Z,13\n"),
	}

	metrics, err := (&CSVParser{}).Parse(raw, "org-1", ingestedAt)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "signups", metrics[0].MetricKey)
	assert.Equal(t, 12.5, metrics[0].Value)
}

func TestCSVParserTwoColumnsWithMetadataKey(t *testing.T) {
	raw := api.RawMetricData{
		SourceID:   "src-csv",
		SourceType: "csv",
		Metadata:   map[string]string{"metric_key": "mrr"},
		Payload:    []byte("2026-08-30T10:00:00Z,100\n2026-08-30T11:00:00Z,110\n"),
	}

	metrics, err := (&CSVParser{}).Parse(raw, "org-1", ingestedAt)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "mrr", metrics[0].MetricKey)
	assert.Equal(t, 110.0, metrics[1].Value)
}

func TestCSVParserBadValue(t *testing.T) {
	raw := api.RawMetricData{
		SourceType: "csv",
		Payload:    []byte("signups,2026-08-30T10:00:00Z,twelve\n"),
	}
	_, err := (&CSVParser{}).Parse(raw, "org-1", ingestedAt)
	assert.Error(t, err)
}

func TestRegistryFailsClosedOnUnknownType(t *testing.T) {
	registry := DefaultRegistry()

	_, err := registry.Parse(api.RawMetricData{SourceType: "carrier-pigeon"}, "org-1", ingestedAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")

	_, err = registry.Parse(api.RawMetricData{
		SourceType: "webhook",
		Payload:    []byte(`{"metric_key":"a","timestamp":"2026-08-30T10:00:00Z","value":1}`),
	}, "org-1", ingestedAt)
	assert.NoError(t, err)
}
