package mapper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/identity"
)

// scalarRule is one named transform for scalar field values. apply reports
// whether the rule claimed the field; the first claiming rule wins.
type scalarRule struct {
	name  string
	apply func(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error)
}

// scalarRules is evaluated in priority order. The order reproduces the
// field-by-field policy of the upstream export semantics; reordering rules
// changes which one claims overlapping fields (e.g. doi is both a link field
// and a synthesized-DOI field).
var scalarRules = []scalarRule{
	{name: "restricted-mapping", apply: ruleRestrictedMapping},
	{name: "container-reference", apply: ruleContainerReference},
	{name: "language-tagged-title", apply: ruleLanguageTaggedTitle},
	{name: "link-field", apply: ruleLinkField},
	{name: "doi", apply: ruleDOI},
	{name: "integer-field", apply: ruleIntegerField},
	{name: "date", apply: ruleDate},
	{name: "timestamp-passthrough", apply: ruleTimestampPassthrough},
	{name: "entity-field", apply: ruleEntityField},
	{name: "plain-literal", apply: rulePlainLiteral},
}

// ruleRestrictedMapping applies when an entity-mapping restriction list is
// configured and the field is not on it: the value bypasses all entity logic
// and is stored as a plain literal.
func ruleRestrictedMapping(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	if len(t.Mapping.RDFMapping) == 0 || contains(t.Mapping.RDFMapping, field) {
		return Result{}, false, nil
	}
	return literalOf(schemas.Literal(value)), true, nil
}

// ruleContainerReference rewrites collection and parent references into
// nodes under the library's base URL.
func ruleContainerReference(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	switch field {
	case "collections", "parentCollection":
		return nodeOf(schemas.SafeIRI(t.BaseURL+"/collections/"+value, true)), true, nil
	case "parentItem":
		return nodeOf(schemas.SafeIRI(t.BaseURL+"/items/"+value, true)), true, nil
	}
	return Result{}, false, nil
}

// ruleLanguageTaggedTitle claims title and language fields when a language
// hint is known. The language-tagged literal is computed and then dropped,
// matching the observed upstream behavior of emitting no statement on this
// branch; LanguageTagged stays available should that ever become live.
func ruleLanguageTaggedTitle(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	if t.LanguageHint == "" {
		return Result{}, false, nil
	}
	switch field {
	case "title", "bookTitle", "language":
		_ = LanguageTagged(value, t.LanguageHint)
		m.log.Debug("Language-tagged value computed but not stored",
			zap.String("field", field), zap.String("language", t.LanguageHint))
		return noResult(), true, nil
	}
	return Result{}, false, nil
}

// LanguageTagged builds a language-tagged literal. Unknown or empty tags
// fall back to "und".
func LanguageTagged(value, lang string) schemas.Term {
	if lang == "" {
		lang = "und"
	}
	return schemas.LangLiteral(value, lang)
}

// ruleLinkField keeps absolute URLs in link-like fields as named nodes.
// These values are never split: a URL may legally contain commas and
// semicolons.
func ruleLinkField(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	switch field {
	case "url", "dc:relation", "doi", "owl:sameAs":
		if strings.HasPrefix(value, "http") {
			return nodeOf(schemas.SafeIRI(value, true)), true, nil
		}
	}
	return Result{}, false, nil
}

// ruleDOI synthesizes a resolver URL for bare DOIs.
func ruleDOI(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	if field == "doi" && len(value) > 5 {
		return nodeOf(schemas.SafeIRI("https://doi.org/"+value, true)), true, nil
	}
	return Result{}, false, nil
}

var integerFields = []string{"numPages", "numberOfVolumes", "volume", "series number"}

func ruleIntegerField(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	if !contains(integerFields, field) || !isDigits(value) {
		return Result{}, false, nil
	}
	return literalOf(schemas.TypedLiteral(value, schemas.XSDInt)), true, nil
}

func ruleDate(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	if field != "date" {
		return Result{}, false, nil
	}
	return literalOf(classifyDate(value)), true, nil
}

var timestampFields = []string{"dateModified", "accessDate", "dateAdded"}

// ruleTimestampPassthrough types system timestamps as dateTime without
// validating them.
func ruleTimestampPassthrough(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	if !contains(timestampFields, field) {
		return Result{}, false, nil
	}
	return literalOf(schemas.TypedLiteral(value, schemas.XSDDateTime)), true, nil
}

// ruleEntityField resolves configured fields (place, publisher, series by
// default, plus anything on the restriction list) into typed knowledge-base
// entities. Values are split on semicolons only, never commas, so "Smith,
// John" stays one entity.
func ruleEntityField(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	if !contains(t.Mapping.EntityFields, field) && !contains(t.Mapping.RDFMapping, field) {
		return Result{}, false, nil
	}

	pred := t.predicate(field)
	for _, segment := range strings.Split(value, ";") {
		label := strings.TrimSpace(segment)
		if label == "" {
			continue
		}
		res, err := m.resolver.Resolve(ctx, m.store, schemas.ResolveRequest{
			Label:      label,
			TypeIRI:    t.typeIRI(field),
			Graph:      t.KBGraph,
			Predicates: t.labelPredicates(),
			Threshold:  t.Mapping.Threshold,
		})
		if err != nil {
			return Result{}, true, fmt.Errorf("entity resolution for %q failed: %w", label, err)
		}
		if _, err := m.store.Add(ctx, schemas.Quad{
			Subject: subject, Predicate: pred, Object: res.Node, Graph: t.Graph,
		}); err != nil {
			return Result{}, true, err
		}
	}
	return handled(), true, nil
}

func rulePlainLiteral(m *Mapper, ctx context.Context, t *Target, subject schemas.Term, field, value string) (Result, bool, error) {
	return literalOf(schemas.Literal(value)), true, nil
}

// -- Object-shaped special cases --

// mapTag create-or-reuses a tag entity keyed by exact tag text. Tags are
// never fuzzy-matched; two spellings are two tags. Extra keys on the tag
// object become literal properties, only on first creation.
func (m *Mapper) mapTag(ctx context.Context, t *Target, subject schemas.Term, obj map[string]any) (Result, bool, error) {
	text, ok := obj["tag"].(string)
	if !ok {
		return Result{}, false, nil
	}
	if strings.TrimSpace(text) == "" {
		return noResult(), true, nil
	}

	node := identity.EntityID(t.KBGraph, "tag", text)
	rdfType := schemas.IRI(schemas.RDFType)
	tagType := t.typeIRI("tag")
	existing, err := m.store.Match(ctx, &node, &rdfType, &tagType, &t.KBGraph)
	if err != nil {
		return Result{}, true, err
	}
	if len(existing) == 0 {
		quads := []schemas.Quad{
			{Subject: node, Predicate: rdfType, Object: tagType, Graph: t.KBGraph},
			{Subject: node, Predicate: schemas.IRI(schemas.RDFSLabel), Object: schemas.Literal(text), Graph: t.KBGraph},
		}
		for _, key := range sortedKeys(obj) {
			if key == "tag" {
				continue
			}
			if v, ok := scalarString(obj[key]); ok && v != "" {
				quads = append(quads, schemas.Quad{
					Subject: node, Predicate: t.predicate(key), Object: schemas.Literal(v), Graph: t.KBGraph,
				})
			}
		}
		for _, q := range quads {
			if _, err := m.store.Add(ctx, q); err != nil {
				return Result{}, true, err
			}
		}
	}

	_, err = m.store.Add(ctx, schemas.Quad{
		Subject: subject, Predicate: t.predicate("tags"), Object: node, Graph: t.Graph,
	})
	return handled(), true, err
}

// creatorMetaKeys are consumed by the creator mapping itself; anything else
// on the creator object is an extra property of the person.
var creatorMetaKeys = []string{"name", "firstName", "lastName", "creatorType"}

// mapCreator resolves a person entity from the creator's display label and
// links it to the subject through an anonymous role node. Extra creator
// properties are written only when the person is first created.
func (m *Mapper) mapCreator(ctx context.Context, t *Target, subject schemas.Term, obj map[string]any) (Result, bool, error) {
	label := creatorLabel(obj)
	if label == "" {
		return noResult(), true, nil
	}

	res, err := m.resolver.Resolve(ctx, m.store, schemas.ResolveRequest{
		Label:      label,
		TypeIRI:    t.typeIRI("person"),
		Graph:      t.KBGraph,
		Predicates: t.labelPredicates(),
		Threshold:  t.Mapping.Threshold,
	})
	if err != nil {
		return Result{}, true, fmt.Errorf("person resolution for %q failed: %w", label, err)
	}

	if !res.Matched {
		for _, key := range sortedKeys(obj) {
			if contains(creatorMetaKeys, key) {
				continue
			}
			if v, ok := scalarString(obj[key]); ok && v != "" {
				if _, err := m.store.Add(ctx, schemas.Quad{
					Subject: res.Node, Predicate: t.predicate(key), Object: schemas.Literal(v), Graph: t.KBGraph,
				}); err != nil {
					return Result{}, true, err
				}
			}
		}
	}

	role := schemas.NewBlankNode()
	quads := []schemas.Quad{
		{Subject: subject, Predicate: t.predicate("creators"), Object: role, Graph: t.Graph},
		{Subject: role, Predicate: schemas.IRI(schemas.RDFType), Object: t.typeIRI("creatorRole"), Graph: t.Graph},
		{Subject: role, Predicate: t.predicate("hasCreator"), Object: res.Node, Graph: t.Graph},
	}
	if creatorType, _ := obj["creatorType"].(string); creatorType != "" {
		quads = append(quads,
			schemas.Quad{Subject: role, Predicate: schemas.IRI(schemas.RDFType), Object: t.typeIRI(creatorType), Graph: t.Graph},
			schemas.Quad{Subject: role, Predicate: schemas.IRI(schemas.RDFSLabel), Object: schemas.Literal(creatorType), Graph: t.Graph},
		)
	}
	for _, q := range quads {
		if _, err := m.store.Add(ctx, q); err != nil {
			return Result{}, true, err
		}
	}
	return handled(), true, nil
}

// creatorLabel derives the display label: an explicit name, otherwise
// "lastName, firstName" with missing halves dropped.
func creatorLabel(obj map[string]any) string {
	if name, _ := obj["name"].(string); strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	last, _ := obj["lastName"].(string)
	first, _ := obj["firstName"].(string)
	last = strings.TrimSpace(last)
	first = strings.TrimSpace(first)
	switch {
	case last != "" && first != "":
		return last + ", " + first
	case last != "":
		return last
	default:
		return first
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// sortedKeys keeps extra-property emission deterministic despite map order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
