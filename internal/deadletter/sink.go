// Package deadletter keeps a durable record of raw items that failed
// ingestion, retained for audit and replay instead of being silently dropped.
package deadletter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// Entry is one dead-lettered item. Append-only, never mutated.
type Entry struct {
	ID         uuid.UUID         `json:"id"`
	OrgID      string            `json:"org_id"`
	Item       api.RawMetricData `json:"item"`
	Index      int               `json:"index"`
	Reason     string            `json:"reason"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	OrgID    string
	SourceID string
	Limit    int
}

// Sink records rejected ingestion items. Record must not fail for valid
// inputs beyond the underlying store erroring; the coordinator logs and
// swallows those errors, since losing an audit entry beats failing an
// otherwise successful ingestion.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// NewEntry builds an entry with a fresh id and recording time.
func NewEntry(orgID string, item api.RawMetricData, index int, reason string) Entry {
	return Entry{
		ID:         uuid.New(),
		OrgID:      orgID,
		Item:       item,
		Index:      index,
		Reason:     reason,
		RecordedAt: time.Now().UTC(),
	}
}
