// Package identity provides stable identity for graph entities: persons,
// places, tags, publishers and matched knowledge-base concepts. Labels are
// matched fuzzily against the entities already in the knowledge-base graph;
// new entities get identifiers derived deterministically from the graph IRI
// and the label, so repeated ingestion runs converge on the same node.
package identity

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// Resolver implements fuzzy resolve-or-create over a quad store.
type Resolver struct {
	log *zap.Logger
}

var _ schemas.EntityResolver = (*Resolver)(nil)

// NewResolver creates a resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{log: logger.Named("identity")}
}

// Ratio computes a symmetric 0-100 similarity between two labels, case
// insensitive. 100 means equal; 0 means nothing in common.
func Ratio(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 100
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 100
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return int(math.Round(100 * float64(maxLen-dist) / float64(maxLen)))
}

// EntityID derives the deterministic node for a label within a
// knowledge-base graph: a name-based UUID seeded by the graph IRI, under a
// per-class path segment. The segment keeps the same label distinct across
// classes, so a place "Berlin" and a tag "Berlin" are two nodes.
func EntityID(kbGraph schemas.Term, typeName, label string) schemas.Term {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte(kbGraph.Value))
	id := uuid.NewSHA1(ns, []byte(label))
	base := strings.TrimRight(kbGraph.Value, "/")
	if typeName != "" {
		base += "/" + typeName
	}
	return schemas.IRI(base + "/" + id.String())
}

// TypeName extracts the class segment of a type IRI: the fragment when one
// exists, otherwise the last path element.
func TypeName(typeIRI schemas.Term) string {
	v := typeIRI.Value
	if i := strings.LastIndex(v, "#"); i >= 0 {
		return v[i+1:]
	}
	if i := strings.LastIndex(v, "/"); i >= 0 {
		return v[i+1:]
	}
	return v
}

// Resolve finds the best-matching entity of the requested type in the
// knowledge-base graph, or creates a new one. A match at or above the
// threshold reuses the existing node and records the triggering label as an
// alternate spelling; anything below creates a fresh entity carrying the
// label as both primary and alternate label.
func (r *Resolver) Resolve(ctx context.Context, st schemas.QuadStore, req schemas.ResolveRequest) (schemas.ResolveResult, error) {
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return schemas.ResolveResult{}, fmt.Errorf("cannot resolve an empty label")
	}

	predicates := req.Predicates
	if len(predicates) == 0 {
		predicates = []schemas.Term{schemas.IRI(schemas.SKOSAltLabel)}
	}

	best, err := r.scan(ctx, st, req, label, predicates)
	if err != nil {
		return schemas.ResolveResult{}, err
	}

	if best.node != nil && best.score >= req.Threshold {
		node := *best.node
		r.log.Debug("Fuzzy match",
			zap.String("label", label),
			zap.String("matched_label", best.label),
			zap.Int("score", best.score),
			zap.String("node", node.Value))
		if err := r.addAltLabel(ctx, st, node, req.Graph, label, predicates); err != nil {
			return schemas.ResolveResult{}, err
		}
		return schemas.ResolveResult{Node: node, Score: best.score, Matched: true, Label: best.label}, nil
	}

	node := EntityID(req.Graph, TypeName(req.TypeIRI), label)
	for _, q := range []schemas.Quad{
		{Subject: node, Predicate: schemas.IRI(schemas.RDFType), Object: req.TypeIRI, Graph: req.Graph},
		{Subject: node, Predicate: schemas.IRI(schemas.RDFSLabel), Object: schemas.Literal(label), Graph: req.Graph},
		{Subject: node, Predicate: schemas.IRI(schemas.SKOSAltLabel), Object: schemas.Literal(label), Graph: req.Graph},
	} {
		if _, err := st.Add(ctx, q); err != nil {
			return schemas.ResolveResult{}, fmt.Errorf("failed to create entity %s: %w", node.Value, err)
		}
	}
	r.log.Debug("New entity",
		zap.String("label", label),
		zap.String("type", req.TypeIRI.Value),
		zap.String("node", node.Value))
	return schemas.ResolveResult{Node: node, Score: 0, Matched: false, Label: label}, nil
}

type candidate struct {
	node  *schemas.Term
	score int
	label string
}

// scan compares the label against every stored label of every entity of the
// requested type. Ties keep the first candidate in store order, which is
// stable for a given pass.
func (r *Resolver) scan(ctx context.Context, st schemas.QuadStore, req schemas.ResolveRequest, label string, predicates []schemas.Term) (candidate, error) {
	rdfType := schemas.IRI(schemas.RDFType)
	typed, err := st.Match(ctx, nil, &rdfType, &req.TypeIRI, &req.Graph)
	if err != nil {
		return candidate{}, fmt.Errorf("failed to scan candidates: %w", err)
	}

	var best candidate
	for _, tq := range typed {
		subject := tq.Subject
		for _, pred := range predicates {
			p := pred
			labels, err := st.Match(ctx, &subject, &p, nil, &req.Graph)
			if err != nil {
				return candidate{}, fmt.Errorf("failed to read labels of %s: %w", subject.Value, err)
			}
			for _, lq := range labels {
				if !lq.Object.IsLiteral() {
					continue
				}
				score := Ratio(label, lq.Object.Value)
				if best.node == nil || score > best.score {
					s := subject
					best = candidate{node: &s, score: score, label: lq.Object.Value}
				}
			}
		}
	}
	return best, nil
}

// addAltLabel records a new spelling on a matched entity unless an equal
// label (case insensitive) is already stored.
func (r *Resolver) addAltLabel(ctx context.Context, st schemas.QuadStore, node, graph schemas.Term, label string, predicates []schemas.Term) error {
	for _, pred := range predicates {
		p := pred
		existing, err := st.Match(ctx, &node, &p, nil, &graph)
		if err != nil {
			return fmt.Errorf("failed to read alternate labels: %w", err)
		}
		for _, q := range existing {
			if q.Object.IsLiteral() && strings.EqualFold(q.Object.Value, label) {
				return nil
			}
		}
	}
	_, err := st.Add(ctx, schemas.Quad{
		Subject:   node,
		Predicate: schemas.IRI(schemas.SKOSAltLabel),
		Object:    schemas.Literal(label),
		Graph:     graph,
	})
	if err != nil {
		return fmt.Errorf("failed to record alternate label: %w", err)
	}
	return nil
}
