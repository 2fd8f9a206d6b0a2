// Package docstore abstracts the persistent keyed document store the
// pipeline runs on. Implementations must support single-document
// transactions; the idempotency claim and the usage counters depend on them.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("docstore: document not found")

// UpdateFunc computes the next version of a document inside a transaction.
// current is nil when the document does not exist yet. Returning a nil next
// deletes the document.
type UpdateFunc func(current []byte) (next []byte, err error)

// Store is a keyed document store. Handles are passed explicitly through
// constructors; there is no package-level default instance.
type Store interface {
	// Get returns the document under (collection, key), or ErrNotFound.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Put writes the document, replacing any prior version.
	Put(ctx context.Context, collection, key string, doc []byte) error

	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Transact runs fn against the current document under an exclusive
	// per-document lock and persists its result atomically. Concurrent
	// Transact calls for the same key serialize; a plain Get/Put pair
	// does not give that guarantee.
	Transact(ctx context.Context, collection, key string, fn UpdateFunc) error
}
