package notes

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/config"
	"github.com/ch-sander/zotero-rdf-server/internal/observability"
)

// Service runs note extraction over a library's assertion graph and
// reconciles extracted entities against the knowledge base.
type Service struct {
	resolver schemas.EntityResolver
	log      *zap.Logger
}

func NewService(resolver schemas.EntityResolver) *Service {
	return &Service{resolver: resolver, log: observability.GetLogger().Named("notes")}
}

// ParseAll scans the library's assertion graph for note literals under the
// configured predicate, parses each into quads, appends them to the store and
// applies the library's reconciliation rules. It returns the number of notes
// parsed. Per-note failures are logged and skipped.
func (s *Service) ParseAll(ctx context.Context, st schemas.QuadStore, lib config.LibraryConfig) (int, error) {
	graph := schemas.SafeIRI(strings.TrimRight(lib.BaseURL, "/#"), true)
	predicate := qualify(lib.Mapping.Namespace, notePredicateName(lib))

	found, err := st.Match(ctx, nil, &predicate, nil, &graph)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for notes: %w", err)
	}

	parser := &Parser{Namespace: lib.Mapping.Namespace, Graph: graph}
	count := 0
	var extracted []schemas.Quad
	for _, note := range found {
		if !note.Object.IsLiteral() {
			continue
		}
		quads, err := parser.Parse(ctx, note.Subject, note.Object.Value)
		if err != nil {
			s.log.Warn("Skipping unparseable note",
				zap.String("note", note.Subject.Value),
				zap.Error(err))
			continue
		}
		for _, q := range quads {
			if _, err := st.Add(ctx, q); err != nil {
				return count, fmt.Errorf("failed to store note statements: %w", err)
			}
		}
		extracted = append(extracted, quads...)
		count++
	}

	if len(lib.Notes.Rules) > 0 && len(extracted) > 0 {
		s.reconcile(ctx, st, extracted, lib, graph)
	}

	s.log.Info("Note parsing completed",
		zap.String("library", lib.Name),
		zap.Int("notes", count),
		zap.Int("statements", len(extracted)))
	return count, nil
}

// reconcile links extracted entities to knowledge-base nodes. For every rule,
// subjects typed with a domain type have their domain-property literals
// resolved against range-typed KB entities; a resolution asserts the map
// property in the assertion graph. The resolver creates missing KB entities,
// so repeated mentions of the same unknown label converge on one node.
func (s *Service) reconcile(ctx context.Context, st schemas.QuadStore, extracted []schemas.Quad, lib config.LibraryConfig, graph schemas.Term) {
	ns := lib.Mapping.Namespace
	for _, rule := range lib.Notes.Rules {
		kbGraphIRI := rule.KnowledgeBaseGraph
		if kbGraphIRI == "" {
			kbGraphIRI = lib.KnowledgeBaseGraph
		}
		kbGraph := schemas.SafeIRI(strings.TrimRight(kbGraphIRI, "/#"), true)
		domainProp := qualify(ns, rule.DomainProperty)
		mapProp := qualify(ns, rule.MapProperty)

		for _, subject := range subjectsTyped(extracted, ns, rule.DomainTypes) {
			for _, q := range extracted {
				if q.Subject != subject || q.Predicate != domainProp || !q.Object.IsLiteral() {
					continue
				}
				res, err := s.resolver.Resolve(ctx, st, schemas.ResolveRequest{
					Label:      q.Object.Value,
					TypeIRI:    qualify(ns, rule.RangeType),
					Graph:      kbGraph,
					Predicates: []schemas.Term{qualify(ns, rule.TargetProperty)},
					Threshold:  lib.Mapping.Threshold,
				})
				if err != nil {
					s.log.Warn("Knowledge-base reconciliation failed",
						zap.String("label", q.Object.Value),
						zap.Error(err))
					continue
				}
				s.log.Debug("Reconciled note entity",
					zap.String("label", q.Object.Value),
					zap.String("node", res.Node.Value),
					zap.Int("score", res.Score),
					zap.Bool("matched", res.Matched))
				if _, err := st.Add(ctx, schemas.Quad{
					Subject: subject, Predicate: mapProp, Object: res.Node, Graph: graph,
				}); err != nil {
					s.log.Error("Failed to assert reconciliation link", zap.Error(err))
				}
			}
		}
	}
}

// subjectsTyped returns the distinct subjects carrying one of the domain
// types, in first-seen order.
func subjectsTyped(quads []schemas.Quad, namespace string, domainTypes []string) []schemas.Term {
	wanted := map[schemas.Term]bool{}
	for _, name := range domainTypes {
		wanted[qualify(namespace, name)] = true
	}
	var out []schemas.Term
	seen := map[schemas.Term]bool{}
	for _, q := range quads {
		if q.Predicate.Value == schemas.RDFType && wanted[q.Object] && !seen[q.Subject] {
			seen[q.Subject] = true
			out = append(out, q.Subject)
		}
	}
	return out
}

func notePredicateName(lib config.LibraryConfig) string {
	if lib.Notes.Predicate != "" {
		return lib.Notes.Predicate
	}
	return "note"
}
