package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// MemoryStore is a fast, ephemeral quad store. It preserves insertion order
// in Match results, which keeps fuzzy-candidate scans deterministic within a
// process run.
type MemoryStore struct {
	mu    sync.RWMutex
	quads []schemas.Quad
	index map[schemas.Quad]struct{}
	log   *zap.Logger
}

// Ensures MemoryStore correctly implements the QuadStore interface at compile time.
var _ schemas.QuadStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new, empty in-memory quad store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		index: make(map[schemas.Quad]struct{}),
		log:   logger.Named("MemoryStore"),
	}
}

// Add inserts a quad, ignoring exact duplicates.
func (m *MemoryStore) Add(ctx context.Context, q schemas.Quad) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[q]; exists {
		return false, nil
	}
	m.index[q] = struct{}{}
	m.quads = append(m.quads, q)
	return true, nil
}

// Remove deletes a quad if present.
func (m *MemoryStore) Remove(ctx context.Context, q schemas.Quad) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[q]; !exists {
		return false, nil
	}
	delete(m.index, q)
	for i := range m.quads {
		if m.quads[i] == q {
			m.quads = append(m.quads[:i], m.quads[i+1:]...)
			break
		}
	}
	return true, nil
}

// Match returns all quads matching the pattern in insertion order. A nil
// term is a wildcard.
func (m *MemoryStore) Match(ctx context.Context, s, p, o, g *schemas.Term) ([]schemas.Quad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schemas.Quad
	for _, q := range m.quads {
		if matches(q, s, p, o, g) {
			out = append(out, q)
		}
	}
	return out, nil
}

// Len returns the number of stored quads.
func (m *MemoryStore) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.quads), nil
}

// GraphNames returns the distinct named graphs in first-seen order.
func (m *MemoryStore) GraphNames(ctx context.Context) ([]schemas.Term, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[schemas.Term]struct{})
	var out []schemas.Term
	for _, q := range m.quads {
		if _, ok := seen[q.Graph]; ok {
			continue
		}
		seen[q.Graph] = struct{}{}
		out = append(out, q.Graph)
	}
	return out, nil
}

// Clear removes every quad, or only those in the given graph.
func (m *MemoryStore) Clear(ctx context.Context, graph *schemas.Term) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if graph == nil {
		m.quads = nil
		m.index = make(map[schemas.Quad]struct{})
		return nil
	}

	kept := m.quads[:0]
	for _, q := range m.quads {
		if q.Graph == *graph {
			delete(m.index, q)
			continue
		}
		kept = append(kept, q)
	}
	m.quads = kept
	return nil
}

func matches(q schemas.Quad, s, p, o, g *schemas.Term) bool {
	if s != nil && q.Subject != *s {
		return false
	}
	if p != nil && q.Predicate != *p {
		return false
	}
	if o != nil && q.Object != *o {
		return false
	}
	if g != nil && q.Graph != *g {
		return false
	}
	return true
}
