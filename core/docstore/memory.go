package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store and Watcher. It backs local runs and tests
// and follows the same optimistic transaction rules as the durable backends.
type MemoryStore struct {
	*engine
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *MemoryStore {
	return &MemoryStore{engine: newEngine(&memoryBackend{docs: make(map[DocRef]record)}, opts...)}
}

type memoryBackend struct {
	mu   sync.RWMutex
	docs map[DocRef]record
}

func (m *memoryBackend) load(_ context.Context, ref DocRef) (record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.docs[ref]
	if !ok {
		return record{}, nil
	}
	rec.data = CopyData(rec.data)
	return rec, nil
}

func (m *memoryBackend) loadAll(_ context.Context, collection string) ([]DocRef, []record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var refs []DocRef
	for ref := range m.docs {
		if ref.Collection == collection {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	recs := make([]record, len(refs))
	for i, ref := range refs {
		rec := m.docs[ref]
		rec.data = CopyData(rec.data)
		recs[i] = rec
	}
	return refs, recs, nil
}

func (m *memoryBackend) commit(_ context.Context, reads map[DocRef]int64, writes []write, now time.Time) ([]pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ref, version := range reads {
		if m.docs[ref].version != version {
			return nil, ConflictError(fmt.Errorf("document %s changed since read", ref.Path()))
		}
	}

	results, err := resolveWrites(writes, now, func(ref DocRef) (record, error) {
		return m.docs[ref], nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range results {
		m.docs[p.ref] = p.after
	}
	return results, nil
}

func (m *memoryBackend) close(context.Context) error {
	return nil
}
