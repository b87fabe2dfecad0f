// Package store provides the quad storage backends (in-memory and
// PostgreSQL) and the Provider cell through which the rest of the service
// reaches the active store.
package store

import (
	"sync/atomic"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// holder wraps the interface value so atomic.Value never sees two different
// concrete types.
type holder struct {
	s schemas.QuadStore
}

// Provider is an atomic indirection cell for the active store. The ingestion
// orchestrator is its only writer: a refresh builds a fresh store and swaps
// it in once the pass completes, so readers never observe a half-built
// graph. Everyone else reads through Get.
type Provider struct {
	v atomic.Value
}

// NewProvider creates a provider seeded with an initial store.
func NewProvider(s schemas.QuadStore) *Provider {
	p := &Provider{}
	p.v.Store(holder{s: s})
	return p
}

// Get returns the currently active store.
func (p *Provider) Get() schemas.QuadStore {
	return p.v.Load().(holder).s
}

// Swap installs a new active store and returns the previous one.
func (p *Provider) Swap(s schemas.QuadStore) schemas.QuadStore {
	old := p.v.Swap(holder{s: s})
	return old.(holder).s
}
