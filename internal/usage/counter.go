// Package usage tracks per-organization, per-day forecast backend calls.
// One document per organization per day; counters only increase within a
// day and are removed by the out-of-band retention job, never here.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/intent-solutions/intentvision/internal/docstore"
	"github.com/intent-solutions/intentvision/pkg/api"
)

// Collection is the docstore collection usage documents live in.
const Collection = "backend_usage"

// Day is the persisted per-org/per-day usage document.
type Day struct {
	OrgID       string    `json:"orgId"`
	Date        string    `json:"date"` // UTC, YYYY-MM-DD
	Statistical int       `json:"statistical"`
	Nixtla      int       `json:"nixtla"`
	LLM         int       `json:"llm"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Count returns the counter for one backend.
func (d *Day) Count(backend api.Backend) int {
	switch backend {
	case api.BackendStatistical:
		return d.Statistical
	case api.BackendNixtla:
		return d.Nixtla
	case api.BackendLLM:
		return d.LLM
	}
	return 0
}

func (d *Day) add(backend api.Backend) error {
	switch backend {
	case api.BackendStatistical:
		d.Statistical++
	case api.BackendNixtla:
		d.Nixtla++
	case api.BackendLLM:
		d.LLM++
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}
	return nil
}

// Counter applies atomic backend-usage increments on a document store.
type Counter struct {
	docs docstore.Store
	now  func() time.Time
}

// NewCounter creates a counter on a document store handle.
func NewCounter(docs docstore.Store) *Counter {
	return &Counter{docs: docs, now: time.Now}
}

// DateUTC formats a calendar date the way usage documents key on it.
func DateUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func key(orgID, date string) string {
	return orgID + ":" + date
}

// Increment adds one call to the named backend for today, inside a
// single-document transaction. Concurrent increments for the same
// org/day/backend serialize; a read-then-write pair here would silently
// lose updates.
func (c *Counter) Increment(ctx context.Context, orgID string, backend api.Backend) error {
	now := c.now().UTC()
	date := DateUTC(now)
	err := c.docs.Transact(ctx, Collection, key(orgID, date), func(current []byte) ([]byte, error) {
		day := Day{OrgID: orgID, Date: date}
		if current != nil {
			if err := json.Unmarshal(current, &day); err != nil {
				return nil, fmt.Errorf("failed to decode usage document: %w", err)
			}
		}
		if err := day.add(backend); err != nil {
			return nil, err
		}
		day.UpdatedAt = now
		return json.Marshal(day)
	})
	if err != nil {
		return fmt.Errorf("failed to increment %s usage for org %s: %w", backend, orgID, err)
	}
	return nil
}

// GetCount reads the counter for one org/backend/date. Plain read, no
// transaction; an absent document means zero.
func (c *Counter) GetCount(ctx context.Context, orgID string, backend api.Backend, date string) (int, error) {
	day, err := c.GetDay(ctx, orgID, date)
	if err != nil {
		return 0, err
	}
	if day == nil {
		return 0, nil
	}
	return day.Count(backend), nil
}

// GetDay reads the whole usage document for one org/date, or nil when the
// org made no calls that day.
func (c *Counter) GetDay(ctx context.Context, orgID, date string) (*Day, error) {
	doc, err := c.docs.Get(ctx, Collection, key(orgID, date))
	if err == docstore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usage for org %s: %w", orgID, err)
	}
	var day Day
	if err := json.Unmarshal(doc, &day); err != nil {
		return nil, fmt.Errorf("failed to decode usage document: %w", err)
	}
	return &day, nil
}
