package deadletter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intent-solutions/intentvision/pkg/api"
)

func record(t *testing.T, sink *MemorySink, orgID, sourceID, reason string) Entry {
	t.Helper()
	entry := NewEntry(orgID, api.RawMetricData{
		Payload:    json.RawMessage(`{"value":null}`),
		SourceID:   sourceID,
		SourceType: "webhook",
	}, 0, reason)
	require.NoError(t, sink.Record(context.Background(), entry))
	return entry
}

func TestMemorySinkListFilters(t *testing.T) {
	sink := NewMemorySink()
	record(t, sink, "org-1", "stripe-main", "value is NaN")
	record(t, sink, "org-1", "posthog-eu", "timestamp missing time component")
	record(t, sink, "org-2", "stripe-main", "metric_key is empty")

	all, err := sink.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byOrg, err := sink.List(context.Background(), Filter{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, byOrg, 2)

	bySource, err := sink.List(context.Background(), Filter{OrgID: "org-1", SourceID: "stripe-main"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "value is NaN", bySource[0].Reason)

	limited, err := sink.List(context.Background(), Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemorySinkRequeue(t *testing.T) {
	sink := NewMemorySink()
	entry := record(t, sink, "org-1", "stripe-main", "value is NaN")

	got, err := sink.Requeue(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "stripe-main", got.Item.SourceID)

	remaining, err := sink.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	_, err = sink.Requeue(context.Background(), uuid.New())
	assert.Error(t, err)
}
