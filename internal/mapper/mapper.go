// Package mapper implements the record-to-graph transform: a rule-driven
// walker over nested bibliographic records that emits quads, creating or
// reusing knowledge-base entities along the way.
package mapper

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/config"
)

// Mapper walks records and writes quads. It is not safe for concurrent use
// on one target graph; ingestion is sequential by design so that entity
// lookups always observe prior same-pass writes.
type Mapper struct {
	store    schemas.QuadStore
	resolver schemas.EntityResolver
	log      *zap.Logger
}

// New creates a mapper writing to the given store.
func New(store schemas.QuadStore, resolver schemas.EntityResolver, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{store: store, resolver: resolver, log: logger.Named("mapper")}
}

// Target bundles the per-library mapping context: which graphs to write to,
// the library's base URL for item/collection references, the mapping rules
// and the resolved language hint of the record being mapped.
type Target struct {
	Graph        schemas.Term
	KBGraph      schemas.Term
	BaseURL      string
	Mapping      config.MappingConfig
	LanguageHint string
}

// predicate qualifies a field name with the mapping's vocabulary namespace.
func (t *Target) predicate(field string) schemas.Term {
	return schemas.SafeIRI(t.Mapping.Namespace+field, true)
}

// typeIRI qualifies an entity class name with the vocabulary namespace.
func (t *Target) typeIRI(name string) schemas.Term {
	return schemas.SafeIRI(t.Mapping.Namespace+name, true)
}

func (t *Target) labelPredicates() []schemas.Term {
	if len(t.Mapping.LabelPredicates) == 0 {
		return nil
	}
	out := make([]schemas.Term, 0, len(t.Mapping.LabelPredicates))
	for _, p := range t.Mapping.LabelPredicates {
		out = append(out, schemas.IRI(p))
	}
	return out
}

// LanguageHint resolves a record's language field to a BCP 47 tag through
// the mapping's language map. An absent language yields no hint; an unknown
// one yields the undetermined tag.
func LanguageHint(m config.MappingConfig, record schemas.Record) string {
	raw, _ := record.Data()["language"].(string)
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return m.Language
	}
	if tag, ok := m.LanguageMap[raw]; ok {
		return tag
	}
	return m.LanguageMap[""]
}

// MapRecord walks every allowed field of the record and asserts the
// resulting statements about subject. Failures are contained per field: a
// rule error drops that field, logs it, and processing continues with the
// siblings.
func (m *Mapper) MapRecord(ctx context.Context, t *Target, subject schemas.Term, record map[string]any) error {
	for _, field := range sortedKeys(record) {
		value := record[field]
		if isEmptyValue(value) {
			continue
		}
		if !fieldAllowed(t.Mapping, field) {
			continue
		}
		if err := m.mapField(ctx, t, subject, field, value); err != nil {
			m.log.Warn("Field mapping failed; field dropped",
				zap.String("field", field),
				zap.Any("value", value),
				zap.String("subject", subject.Value),
				zap.Error(err))
		}
	}
	return nil
}

// fieldAllowed applies allowlist/blocklist filtering. A non-empty allowlist
// wins over the blocklist; fields on the entity-restriction list are always
// considered.
func fieldAllowed(m config.MappingConfig, field string) bool {
	if contains(m.RDFMapping, field) {
		return true
	}
	if len(m.White) > 0 {
		return contains(m.White, field)
	}
	if len(m.Black) > 0 {
		return !contains(m.Black, field)
	}
	return true
}

func (m *Mapper) mapField(ctx context.Context, t *Target, subject schemas.Term, field string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		return m.mapObject(ctx, t, subject, field, v)
	case []any:
		for _, elem := range v {
			if isEmptyValue(elem) {
				continue
			}
			var err error
			if obj, ok := elem.(map[string]any); ok {
				err = m.mapObject(ctx, t, subject, field, obj)
			} else {
				err = m.mapScalar(ctx, t, subject, field, elem)
			}
			if err != nil {
				return err
			}
		}
		return nil
	default:
		return m.mapScalar(ctx, t, subject, field, value)
	}
}

// mapObject handles object-shaped values: the tag and creator special cases
// first, then the generic nested-object expansion into an anonymous node.
func (m *Mapper) mapObject(ctx context.Context, t *Target, subject schemas.Term, field string, obj map[string]any) error {
	if field == "tags" {
		if _, claimed, err := m.mapTag(ctx, t, subject, obj); claimed {
			return err
		}
	}
	if field == "creators" {
		if _, claimed, err := m.mapCreator(ctx, t, subject, obj); claimed {
			return err
		}
	}

	// Under an entity-restriction list, unlisted object fields are skipped
	// entirely, without descending.
	if len(t.Mapping.RDFMapping) > 0 && !contains(t.Mapping.RDFMapping, field) {
		m.log.Debug("Object field outside restriction list skipped", zap.String("field", field))
		return nil
	}

	node := schemas.NewBlankNode()
	if _, err := m.store.Add(ctx, schemas.Quad{
		Subject: subject, Predicate: t.predicate(field), Object: node, Graph: t.Graph,
	}); err != nil {
		return err
	}
	return m.MapRecord(ctx, t, node, obj)
}

func (m *Mapper) mapScalar(ctx context.Context, t *Target, subject schemas.Term, field string, value any) error {
	str, ok := scalarString(value)
	if !ok {
		return fmt.Errorf("unsupported value shape %T", value)
	}
	if str == "" {
		return nil
	}

	for _, rule := range scalarRules {
		result, claimed, err := rule.apply(m, ctx, t, subject, field, str)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.name, err)
		}
		if !claimed {
			continue
		}
		switch result.Kind {
		case None, Handled:
			return nil
		case LiteralResult, NodeResult:
			_, err := m.store.Add(ctx, schemas.Quad{
				Subject: subject, Predicate: t.predicate(field), Object: result.Term, Graph: t.Graph,
			})
			return err
		}
		return nil
	}
	return nil
}

// scalarString renders JSON scalar values the way they appear in the source.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}
