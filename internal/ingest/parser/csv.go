package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// CSVParser handles the CSV upload connector. Expected columns:
// metric_key,timestamp,value with an optional header row. The metric key may
// also come from item metadata when the file carries only timestamp,value.
type CSVParser struct{}

func (p *CSVParser) Parse(raw api.RawMetricData, orgID string, ingestedAt time.Time) ([]api.CanonicalMetric, error) {
	reader := csv.NewReader(bytes.NewReader(raw.Payload))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv payload: %w", err)
	}

	defaultKey := raw.Metadata["metric_key"]
	var metrics []api.CanonicalMetric
	for i, row := range rows {
		if i == 0 && isHeader(row) {
			continue
		}

		var key, ts, rawValue string
		switch len(row) {
		case 2:
			key, ts, rawValue = defaultKey, row[0], row[1]
		case 3:
			key, ts, rawValue = row[0], row[1], row[2]
		default:
			return nil, fmt.Errorf("csv row %d: expected 2 or 3 columns, got %d", i+1, len(row))
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: invalid value %q", i+1, rawValue)
		}

		metrics = append(metrics, api.CanonicalMetric{
			OrgID:      orgID,
			MetricKey:  strings.TrimSpace(key),
			Timestamp:  strings.TrimSpace(ts),
			Value:      value,
			Dimensions: map[string]string{},
			Provenance: &api.Provenance{
				SourceID:   raw.SourceID,
				IngestedAt: ingestedAt,
			},
		})
	}
	return metrics, nil
}

func isHeader(row []string) bool {
	for _, cell := range row {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "metric_key", "timestamp", "value":
			return true
		}
	}
	return false
}
