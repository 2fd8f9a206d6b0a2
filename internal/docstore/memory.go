package docstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and the CLI dry-run path.
// A single mutex covers all collections, so every Transact is trivially
// serialized.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, collection, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (m *Memory) Put(ctx context.Context, collection, key string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(collection, key, doc)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs[collection], key)
	return nil
}

func (m *Memory) Transact(ctx context.Context, collection, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current []byte
	if doc, ok := m.docs[collection][key]; ok {
		current = make([]byte, len(doc))
		copy(current, doc)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.docs[collection], key)
		return nil
	}
	m.put(collection, key, next)
	return nil
}

func (m *Memory) put(collection, key string, doc []byte) {
	col, ok := m.docs[collection]
	if !ok {
		col = make(map[string][]byte)
		m.docs[collection] = col
	}
	stored := make([]byte, len(doc))
	copy(stored, doc)
	col[key] = stored
}
