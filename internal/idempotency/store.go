// Package idempotency makes the ingestion endpoint effectively idempotent
// for retried deliveries: a resubmission of byte-identical content from the
// same source within the TTL window gets the previously computed response
// back without reprocessing.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/intent-solutions/intentvision/internal/docstore"
)

// Collection is the docstore collection idempotency records live in.
const Collection = "idempotency"

// DefaultTTL is how long a cached response stays live.
const DefaultTTL = 24 * time.Hour

// Record is the persisted idempotency document. Immutable after completion
// except for replacement on an exact same-key resubmission. A Record with a
// nil Response is a pending claim: processing started but has not completed.
type Record struct {
	Key       string          `json:"key"`
	RequestID string          `json:"request_id"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// Pending reports whether the record is a claim without a completed response.
func (r *Record) Pending() bool { return len(r.Response) == 0 }

// Store is the key -> cached-response cache with TTL expiry.
type Store struct {
	docs docstore.Store
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a store on top of a document store handle. ttl <= 0 means
// DefaultTTL.
func NewStore(docs docstore.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{docs: docs, ttl: ttl, now: time.Now}
}

// Lookup returns the record under key, or nil when absent or expired.
// Expiry is evaluated against the clock at call time; expired records are
// left for the retention job to remove.
func (s *Store) Lookup(ctx context.Context, key string) (*Record, error) {
	doc, err := s.docs.Get(ctx, Collection, key)
	if err == docstore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, nil
	}
	return &rec, nil
}

// Claim atomically resolves the key in a single document transaction: if a
// live completed record exists it is returned as the cached result, otherwise
// a pending claim is written and the caller owns processing. A pending claim
// left behind by a crashed or in-flight call is taken over, so a delivery is
// never wedged behind a dead claim; two truly concurrent deliveries may both
// process, which the design accepts (last completion wins).
func (s *Store) Claim(ctx context.Context, key, requestID string) (cached *Record, claimed bool, err error) {
	now := s.now()
	err = s.docs.Transact(ctx, Collection, key, func(current []byte) ([]byte, error) {
		if current != nil {
			var rec Record
			if err := json.Unmarshal(current, &rec); err != nil {
				return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
			}
			if !rec.Pending() && now.Before(rec.ExpiresAt) {
				cached = &rec
				return current, nil
			}
		}
		claim := Record{
			Key:       key,
			RequestID: requestID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		claimed = true
		return json.Marshal(claim)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return cached, claimed, nil
}

// Complete stores the computed response under the key, replacing the pending
// claim. Expiry is now + TTL so the cache window starts at completion.
func (s *Store) Complete(ctx context.Context, key, requestID string, response []byte) error {
	now := s.now()
	rec := Record{
		Key:       key,
		RequestID: requestID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Response:  response,
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if err := s.docs.Put(ctx, Collection, key, doc); err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

// Release drops a pending claim after a failed call so the delivery can be
// retried immediately. A completed record or a claim taken over by another
// request is left alone.
func (s *Store) Release(ctx context.Context, key, requestID string) error {
	err := s.docs.Transact(ctx, Collection, key, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, nil
		}
		var rec Record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
		}
		if !rec.Pending() || rec.RequestID != requestID {
			return current, nil
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to release idempotency claim: %w", err)
	}
	return nil
}
