// Package clickhouse provides the ClickHouse analytics store for canonical
// metrics and dead-lettered ingestion items. Optimized for columnar
// time-series reads and high-volume batch writes.
package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/intent-solutions/intentvision/internal/deadletter"
	"github.com/intent-solutions/intentvision/internal/validate"
	"github.com/intent-solutions/intentvision/pkg/api"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "intentvision",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store persists metric batches and dead letters in ClickHouse.
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

var _ deadletter.Sink = (*Store)(nil)

// NewStore creates a new ClickHouse metric store
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Migrate creates the metric tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS canonical_metrics (
			org_id      String,
			metric_key  String,
			ts          DateTime64(3, 'UTC'),
			value       Float64,
			dimensions  String,
			source_id   String,
			ingested_at DateTime64(3, 'UTC'),
			batch_id    String,
			created_at  DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (org_id, metric_key, ts)
		`,
		`
		CREATE TABLE IF NOT EXISTS dead_letters (
			id          UUID,
			org_id      String,
			source_id   String,
			source_type String,
			payload     String,
			metadata    String,
			item_index  Int32,
			reason      String,
			received_at DateTime64(3, 'UTC'),
			recorded_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree()
		ORDER BY (org_id, recorded_at, id)
		`,
	}
	for _, q := range queries {
		if err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// =============================================================================
// METRIC OPERATIONS
// =============================================================================

// SaveBatch inserts all metrics of an accepted batch using a batch insert.
func (s *Store) SaveBatch(ctx context.Context, b *api.MetricBatch) error {
	if len(b.Metrics) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO canonical_metrics (
			org_id, metric_key, ts, value, dimensions,
			source_id, ingested_at, batch_id, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for _, m := range b.Metrics {
		ts, err := validate.ParseTimestamp(m.Timestamp)
		if err != nil {
			// Timestamps are checked before a batch is accepted; an
			// unparseable one here means the batch bypassed validation.
			return fmt.Errorf("failed to parse metric timestamp %q: %w", m.Timestamp, err)
		}
		dims, err := json.Marshal(m.Dimensions)
		if err != nil {
			return fmt.Errorf("failed to marshal dimensions: %w", err)
		}
		var sourceID string
		ingestedAt := now
		if m.Provenance != nil {
			sourceID = m.Provenance.SourceID
			ingestedAt = m.Provenance.IngestedAt
		}
		if err := batch.Append(
			m.OrgID, m.MetricKey, ts, m.Value, string(dims),
			sourceID, ingestedAt, b.BatchID, now,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// GetSeries returns the observed points of a metric ordered by time,
// restricted to points at or after since when since is non-zero.
func (s *Store) GetSeries(ctx context.Context, orgID, metricKey string, since time.Time) ([]api.SeriesPoint, error) {
	query := `
		SELECT ts, value
		FROM canonical_metrics
		WHERE org_id = ? AND metric_key = ? AND ts >= ?
		ORDER BY ts
	`
	rows, err := s.conn.Query(ctx, query, orgID, metricKey, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var points []api.SeriesPoint
	for rows.Next() {
		var ts time.Time
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("failed to scan series point: %w", err)
		}
		points = append(points, api.SeriesPoint{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Value:     value,
		})
	}
	return points, nil
}

// ListMetricKeys returns the distinct metric keys an org has ingested.
func (s *Store) ListMetricKeys(ctx context.Context, orgID string) ([]string, error) {
	query := `
		SELECT DISTINCT metric_key
		FROM canonical_metrics
		WHERE org_id = ?
		ORDER BY metric_key
	`
	rows, err := s.conn.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan metric key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// CountMetrics returns the number of stored points for an org.
func (s *Store) CountMetrics(ctx context.Context, orgID string) (int, error) {
	query := `SELECT count() FROM canonical_metrics WHERE org_id = ?`
	row := s.conn.QueryRow(ctx, query, orgID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count metrics: %w", err)
	}
	return int(count), nil
}

// =============================================================================
// DEAD LETTER OPERATIONS
// =============================================================================

// Record appends a dead-lettered item.
func (s *Store) Record(ctx context.Context, entry deadletter.Entry) error {
	meta, err := json.Marshal(entry.Item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	query := `
		INSERT INTO dead_letters (
			id, org_id, source_id, source_type, payload, metadata,
			item_index, reason, received_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := s.conn.Exec(ctx, query,
		entry.ID, entry.OrgID, entry.Item.SourceID, entry.Item.SourceType,
		string(entry.Item.Payload), string(meta),
		int32(entry.Index), entry.Reason, entry.Item.ReceivedAt, entry.RecordedAt,
	); err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

// List returns dead letters newest first, narrowed by the filter.
func (s *Store) List(ctx context.Context, filter deadletter.Filter) ([]deadletter.Entry, error) {
	query := `
		SELECT id, org_id, source_id, source_type, payload, metadata,
			   item_index, reason, received_at, recorded_at
		FROM dead_letters
		WHERE (? = '' OR org_id = ?)
		  AND (? = '' OR source_id = ?)
		ORDER BY recorded_at DESC
		LIMIT ?
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.Query(ctx, query,
		filter.OrgID, filter.OrgID, filter.SourceID, filter.SourceID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []deadletter.Entry
	for rows.Next() {
		var (
			entry    deadletter.Entry
			id       uuid.UUID
			payload  string
			metaJSON string
			index    int32
		)
		if err := rows.Scan(
			&id, &entry.OrgID, &entry.Item.SourceID, &entry.Item.SourceType,
			&payload, &metaJSON, &index, &entry.Reason,
			&entry.Item.ReceivedAt, &entry.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		entry.ID = id
		entry.Index = int(index)
		entry.Item.Payload = json.RawMessage(payload)
		if metaJSON != "" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &entry.Item.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetDeadLetter fetches a single dead letter by id.
func (s *Store) GetDeadLetter(ctx context.Context, id uuid.UUID) (*deadletter.Entry, error) {
	query := `
		SELECT id, org_id, source_id, source_type, payload, metadata,
			   item_index, reason, received_at, recorded_at
		FROM dead_letters
		WHERE id = ?
		LIMIT 1
	`
	row := s.conn.QueryRow(ctx, query, id)

	var (
		entry    deadletter.Entry
		payload  string
		metaJSON string
		index    int32
	)
	err := row.Scan(
		&entry.ID, &entry.OrgID, &entry.Item.SourceID, &entry.Item.SourceType,
		&payload, &metaJSON, &index, &entry.Reason,
		&entry.Item.ReceivedAt, &entry.RecordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	entry.Index = int(index)
	entry.Item.Payload = json.RawMessage(payload)
	if metaJSON != "" && metaJSON != "null" {
		if err := json.Unmarshal([]byte(metaJSON), &entry.Item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &entry, nil
}
