// Package validate checks candidate canonical metrics against the spine
// schema. The checks are structural, not semantic: metric-key naming
// conventions, dimension cardinality and business rules are a caller concern.
package validate

import (
	"fmt"
	"math"
	"time"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// FieldError reports the first field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Message)
}

// timestampLayouts are the accepted textual forms. Every layout carries a
// time component; a bare date like "2024-01-02" is rejected.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Metric validates a candidate canonical metric. Rules run in a fixed order
// and the first failure wins. No side effects.
func Metric(m *api.CanonicalMetric) error {
	if m == nil {
		return &FieldError{Field: "metric", Message: "candidate is nil"}
	}
	if m.OrgID == "" {
		return &FieldError{Field: "org_id", Message: "must be present and non-empty"}
	}
	if m.MetricKey == "" {
		return &FieldError{Field: "metric_key", Message: "must be present and non-empty"}
	}
	if m.Timestamp == "" {
		return &FieldError{Field: "timestamp", Message: "must be present and non-empty"}
	}
	if _, err := ParseTimestamp(m.Timestamp); err != nil {
		return &FieldError{
			Field:   "timestamp",
			Message: fmt.Sprintf("%q is not an ISO-8601 timestamp with a time component", m.Timestamp),
		}
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return &FieldError{Field: "value", Message: "must be a finite number"}
	}
	if m.Dimensions == nil {
		return &FieldError{Field: "dimensions", Message: "must be present as a key/value map"}
	}
	if m.Provenance == nil {
		return &FieldError{Field: "provenance", Message: "must be present"}
	}
	if m.Provenance.SourceID == "" {
		return &FieldError{Field: "provenance.source_id", Message: "must be present and non-empty"}
	}
	if m.Provenance.IngestedAt.IsZero() {
		return &FieldError{Field: "provenance.ingested_at", Message: "must be a valid timestamp"}
	}
	return nil
}

// ParseTimestamp parses a metric timestamp in any accepted layout.
func ParseTimestamp(ts string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", ts)
}
