package mapper

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// ItemNode returns the node for an item record: {base}/items/{key}, with a
// fresh random key when the source record has none.
func ItemNode(baseURL string, record schemas.Record) schemas.Term {
	return containerNode(baseURL, "items", record)
}

// CollectionNode returns the node for a collection record.
func CollectionNode(baseURL string, record schemas.Record) schemas.Term {
	return containerNode(baseURL, "collections", record)
}

func containerNode(baseURL, kind string, record schemas.Record) schemas.Term {
	key := record.Key()
	if key == "" {
		key = uuid.New().String()
	}
	return schemas.SafeIRI(strings.TrimRight(baseURL, "/")+"/"+kind+"/"+key, true)
}

// ApplyTypes asserts rdf:type statements for a top-level node. Each
// configured type field is read from the record (a "_"-prefixed entry is a
// literal constant instead), split on commas, and every token becomes one
// type: absolute URIs as-is, bare names qualified with the vocabulary
// namespace. Without type fields the node gets exactly one default type.
// Idempotent: it only adds statements.
func (m *Mapper) ApplyTypes(ctx context.Context, t *Target, node schemas.Term, record map[string]any) error {
	rdfType := schemas.IRI(schemas.RDFType)

	if len(t.Mapping.TypeFields) == 0 {
		name := t.Mapping.DefaultType
		if name == "" {
			name = "item"
		}
		_, err := m.store.Add(ctx, schemas.Quad{
			Subject: node, Predicate: rdfType, Object: t.typeIRI(name), Graph: t.Graph,
		})
		return err
	}

	for _, field := range t.Mapping.TypeFields {
		var raw string
		if strings.HasPrefix(field, "_") {
			raw = strings.TrimPrefix(field, "_")
		} else {
			raw, _ = record[field].(string)
		}
		if raw == "" {
			continue
		}
		for _, token := range strings.Split(raw, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			var typeTerm schemas.Term
			if strings.HasPrefix(token, "http") {
				typeTerm = schemas.SafeIRI(token, true)
			} else {
				typeTerm = t.typeIRI(token)
			}
			if _, err := m.store.Add(ctx, schemas.Quad{
				Subject: node, Predicate: rdfType, Object: typeTerm, Graph: t.Graph,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyAdditionalProperties asserts the configured fixed statements on a
// top-level node. A spec's value is a record lookup unless "_"-prefixed
// (literal constant); falsy lookups skip the spec. Idempotent.
func (m *Mapper) ApplyAdditionalProperties(ctx context.Context, t *Target, node schemas.Term, record map[string]any) error {
	for _, spec := range t.Mapping.AdditionalProperties {
		if spec.Property == "" {
			continue
		}
		var raw string
		if strings.HasPrefix(spec.Value, "_") {
			raw = strings.TrimPrefix(spec.Value, "_")
		} else if v, ok := scalarString(record[spec.Value]); ok {
			raw = v
		}
		if raw == "" || raw == "false" || raw == "0" {
			continue
		}

		var pred schemas.Term
		if strings.HasPrefix(spec.Property, "http") {
			pred = schemas.SafeIRI(spec.Property, true)
		} else {
			pred = t.predicate(spec.Property)
		}
		var obj schemas.Term
		if spec.NamedNode {
			obj = schemas.SafeIRI(raw, true)
		} else {
			obj = schemas.Literal(raw)
		}
		if _, err := m.store.Add(ctx, schemas.Quad{
			Subject: node, Predicate: pred, Object: obj, Graph: t.Graph,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ItemLabel derives the human-readable label asserted on item nodes:
// "first creator: title (date)", degrading gracefully when parts are
// missing.
func ItemLabel(record schemas.Record) string {
	data := record.Data()
	title, _ := data["title"].(string)
	date, _ := data["date"].(string)

	var creator string
	if creators, ok := data["creators"].([]any); ok && len(creators) > 0 {
		if first, ok := creators[0].(map[string]any); ok {
			creator = creatorLabel(first)
		}
	}

	label := title
	if creator != "" {
		label = creator + ": " + label
	}
	if date != "" {
		label += " (" + date + ")"
	}
	return strings.TrimSpace(label)
}
