package deadletter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemorySink is an in-process Sink for tests and local runs.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemorySink) List(ctx context.Context, filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if filter.OrgID != "" && e.OrgID != filter.OrgID {
			continue
		}
		if filter.SourceID != "" && e.Item.SourceID != filter.SourceID {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Requeue removes an entry and hands its raw item back for reprocessing.
// Replay tooling affordance, not part of the hot ingestion path.
func (s *MemorySink) Requeue(ctx context.Context, id uuid.UUID) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return &e, nil
		}
	}
	return nil, fmt.Errorf("dead-letter entry not found: %s", id)
}
