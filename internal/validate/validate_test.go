package validate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions/intentvision/pkg/api"
)

func goodMetric() *api.CanonicalMetric {
	return &api.CanonicalMetric{
		OrgID:      "org-1",
		MetricKey:  "revenue.mrr",
		Timestamp:  "2026-08-30T12:00:00Z",
		Value:      42.5,
		Dimensions: map[string]string{"currency": "usd"},
		Provenance: &api.Provenance{
			SourceID:   "src-webhook",
			IngestedAt: time.Date(2026, 8, 30, 12, 0, 1, 0, time.UTC),
		},
	}
}

func TestMetricValid(t *testing.T) {
	require.NoError(t, Metric(goodMetric()))

	// empty dimension map is still a map
	m := goodMetric()
	m.Dimensions = map[string]string{}
	require.NoError(t, Metric(m))
}

func TestMetricFirstFailureWins(t *testing.T) {
	m := goodMetric()
	m.OrgID = ""
	m.MetricKey = ""
	err := Metric(m)
	require.Error(t, err)
	fieldErr := err.(*FieldError)
	assert.Equal(t, "org_id", fieldErr.Field)
}

func TestMetricFieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*api.CanonicalMetric)
		field  string
	}{
		{"missing org", func(m *api.CanonicalMetric) { m.OrgID = "" }, "org_id"},
		{"missing metric key", func(m *api.CanonicalMetric) { m.MetricKey = "" }, "metric_key"},
		{"empty timestamp", func(m *api.CanonicalMetric) { m.Timestamp = "" }, "timestamp"},
		{"garbage timestamp", func(m *api.CanonicalMetric) { m.Timestamp = "not-a-date" }, "timestamp"},
		{"date without time", func(m *api.CanonicalMetric) { m.Timestamp = "2026-08-30" }, "timestamp"},
		{"nan value", func(m *api.CanonicalMetric) { m.Value = math.NaN() }, "value"},
		{"inf value", func(m *api.CanonicalMetric) { m.Value = math.Inf(1) }, "value"},
		{"nil dimensions", func(m *api.CanonicalMetric) { m.Dimensions = nil }, "dimensions"},
		{"missing provenance", func(m *api.CanonicalMetric) { m.Provenance = nil }, "provenance"},
		{"missing source id", func(m *api.CanonicalMetric) { m.Provenance.SourceID = "" }, "provenance.source_id"},
		{"zero ingested at", func(m *api.CanonicalMetric) { m.Provenance.IngestedAt = time.Time{} }, "provenance.ingested_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := goodMetric()
			tt.mutate(m)
			err := Metric(m)
			require.Error(t, err)
			fieldErr, ok := err.(*FieldError)
			require.True(t, ok)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	for _, ts := range []string{
		"2026-08-30T12:00:00Z",
		"2026-08-30T12:00:00.123Z",
		"2026-08-30T12:00:00+02:00",
		"2026-08-30T12:00:00",
		"2026-08-30 12:00:00",
	} {
		_, err := ParseTimestamp(ts)
		assert.NoError(t, err, ts)
	}

	_, err := ParseTimestamp("2026-08-30")
	assert.Error(t, err)
}
