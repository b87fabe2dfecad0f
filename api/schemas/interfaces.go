package schemas

import (
	"context"
)

// -- Store Interface --

// QuadStore defines the storage contract for named-graph RDF data. This
// abstraction keeps the mapping engine independent of the backing
// implementation (in-memory, PostgreSQL).
type QuadStore interface {
	// Add inserts a quad. Duplicate quads are ignored; the boolean reports
	// whether the statement was new.
	Add(ctx context.Context, q Quad) (bool, error)
	// Remove deletes a quad if present and reports whether it existed.
	Remove(ctx context.Context, q Quad) (bool, error)
	// Match returns all quads matching the pattern. A nil term is a
	// wildcard; a non-nil term must match exactly.
	Match(ctx context.Context, s, p, o, g *Term) ([]Quad, error)
	// Len returns the total number of stored quads.
	Len(ctx context.Context) (int, error)
	// GraphNames returns the distinct named graphs present in the store.
	GraphNames(ctx context.Context) ([]Term, error)
	// Clear removes every quad, or only those in the given graph when a
	// graph term is provided.
	Clear(ctx context.Context, graph *Term) error
}

// -- Ingestion Interfaces --

// RecordSource yields the raw bibliographic records for one library. The
// Zotero Web API client and the local-file loader both satisfy it.
type RecordSource interface {
	// Items returns every item record in the library.
	Items(ctx context.Context) ([]Record, error)
	// Collections returns every collection record in the library.
	Collections(ctx context.Context) ([]Record, error)
}

// EntityResolver maps a textual label to a stable entity node, reusing an
// existing node when a sufficiently similar label is already known.
type EntityResolver interface {
	// Resolve finds or mints the entity node for label within the
	// knowledge-base graph. The boolean reports whether the node already
	// existed before the call.
	Resolve(ctx context.Context, store QuadStore, req ResolveRequest) (ResolveResult, error)
}

// NoteParser extracts structured statements from the HTML body of a note.
type NoteParser interface {
	// Parse reads annotated note HTML and returns the quads it encodes,
	// anchored on the note's own node.
	Parse(ctx context.Context, note Term, html string) ([]Quad, error)
}

// -- Resolution Schemas --

// ResolveRequest describes one entity-resolution attempt.
type ResolveRequest struct {
	Label      string // the raw textual mention; must be non-empty
	TypeIRI    Term   // the rdf:type candidates must carry
	Graph      Term   // the knowledge-base graph searched and written to
	Predicates []Term // label predicates to compare against; empty means skos:altLabel
	Threshold  int    // minimum 0-100 similarity for a match; matches are inclusive
}

// ResolveResult reports the outcome of an entity resolution.
type ResolveResult struct {
	Node    Term // the matched or newly minted entity node
	Score   int  // similarity of the best candidate, 0 when newly created
	Matched bool // true when an existing entity was reused
	Label   string
}
