package ingest

import (
	"context"
	"sync"

	"github.com/intent-solutions/intentvision/pkg/api"
)

// MemoryMetricStore keeps accepted batches in memory. Tests and CLI use.
type MemoryMetricStore struct {
	mu      sync.Mutex
	batches []*api.MetricBatch
}

// NewMemoryMetricStore creates an empty in-memory metric store.
func NewMemoryMetricStore() *MemoryMetricStore {
	return &MemoryMetricStore{}
}

func (s *MemoryMetricStore) SaveBatch(ctx context.Context, batch *api.MetricBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

// Batches returns the saved batches in arrival order.
func (s *MemoryMetricStore) Batches() []*api.MetricBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*api.MetricBatch, len(s.batches))
	copy(out, s.batches)
	return out
}
