// Package schema turns a Zotero schema document into ontology statements:
// owl:Class declarations for item and creator types, one owl:DatatypeProperty
// per field with union domains, and locale-tagged labels. The importer is
// purely additive and independent of record ingestion.
package schema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the subset of the Zotero schema endpoint this importer reads.
type Document struct {
	Version   int               `json:"version"`
	ItemTypes []ItemType        `json:"itemTypes"`
	Locales   map[string]Locale `json:"locales"`
}

// ItemType declares one bibliographic record type with its fields and the
// creator roles it supports.
type ItemType struct {
	ItemType     string        `json:"itemType"`
	Fields       []Field       `json:"fields"`
	CreatorTypes []CreatorType `json:"creatorTypes"`
}

// Field is one data field of an item type. BaseField names the canonical
// field this one is an alias of, when the schema declares one.
type Field struct {
	Field     string `json:"field"`
	BaseField string `json:"baseField"`
}

// CreatorType is one creator role an item type supports.
type CreatorType struct {
	CreatorType string `json:"creatorType"`
	Primary     bool   `json:"primary"`
}

// Locale maps type and field names to display labels for one language.
type Locale struct {
	ItemTypes    map[string]string `json:"itemTypes"`
	Fields       map[string]string `json:"fields"`
	CreatorTypes map[string]string `json:"creatorTypes"`
}

// Parse decodes a schema document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema document: %w", err)
	}
	return &doc, nil
}

// Fetch downloads and decodes a schema document.
func Fetch(ctx context.Context, client *http.Client, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("schema fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema response: %w", err)
	}
	return Parse(data)
}

// rootClasses exist regardless of the schema document's contents.
var rootClasses = []string{"item", "library", "collection", "tag", "creatorRole"}

// Importer writes ontology quads derived from a schema document.
type Importer struct {
	store schemas.QuadStore
	log   *zap.Logger
}

func NewImporter(store schemas.QuadStore) *Importer {
	return &Importer{store: store, log: observability.GetLogger().Named("schema")}
}

// Import asserts the ontology derived from doc under the vocabulary IRI. The
// statements land in a graph named by the vocabulary IRI without its trailing
// separator. Re-running is harmless: every statement is a plain add.
func (im *Importer) Import(ctx context.Context, doc *Document, vocabIRI string) error {
	g := &graphWriter{
		store: im.store,
		ctx:   ctx,
		vocab: vocabIRI,
		graph: schemas.SafeIRI(strings.TrimRight(vocabIRI, "#/"), true),
	}

	classLabels, propertyLabels := collectLabels(doc)

	for _, name := range rootClasses {
		g.add(g.term(name), schemas.IRI(schemas.RDFType), schemas.IRI(schemas.OWLClass))
		g.add(g.term(name), schemas.IRI(schemas.RDFSLabel), schemas.Literal(name))
	}

	for _, it := range doc.ItemTypes {
		class := g.term(it.ItemType)
		g.add(class, schemas.IRI(schemas.RDFType), schemas.IRI(schemas.OWLClass))
		g.add(class, schemas.IRI(schemas.RDFSSubClassOf), g.term("item"))
		for _, label := range classLabels[it.ItemType] {
			g.add(class, schemas.IRI(schemas.RDFSLabel), label)
		}
	}

	im.importFields(g, doc, propertyLabels)
	im.importCreators(g, doc, classLabels)

	if g.err != nil {
		return fmt.Errorf("failed to import schema: %w", g.err)
	}
	im.log.Info("Schema imported",
		zap.Int("version", doc.Version),
		zap.Int("item_types", len(doc.ItemTypes)),
		zap.String("graph", g.graph.Value))
	return nil
}

// importFields declares one datatype property per field name, with the domain
// being the union of every item type that declares the field.
func (im *Importer) importFields(g *graphWriter, doc *Document, labels map[string][]schemas.Term) {
	var fieldOrder []string
	fieldDomains := map[string][]string{}
	baseFields := map[string]string{}
	for _, it := range doc.ItemTypes {
		for _, f := range it.Fields {
			if _, seen := fieldDomains[f.Field]; !seen {
				fieldOrder = append(fieldOrder, f.Field)
			}
			fieldDomains[f.Field] = append(fieldDomains[f.Field], it.ItemType)
			if f.BaseField != "" {
				baseFields[f.Field] = f.BaseField
			}
		}
	}

	for _, field := range fieldOrder {
		prop := g.term(field)
		g.add(prop, schemas.IRI(schemas.RDFType), schemas.IRI(schemas.OWLDatatypeProperty))
		g.union(prop, schemas.IRI(schemas.RDFSDomain), fieldDomains[field])
		g.add(prop, schemas.IRI(schemas.RDFSRange), schemas.IRI(schemas.RDFSLiteral))
		for _, label := range labels[field] {
			g.add(prop, schemas.IRI(schemas.RDFSLabel), label)
		}
		if base, ok := baseFields[field]; ok {
			g.add(prop, schemas.IRI(schemas.OWLEquivalentProperty), g.term(base))
		}
	}
}

// importCreators declares creator-type classes and the creators object
// property linking each declaring item type to its creator roles.
func (im *Importer) importCreators(g *graphWriter, doc *Document, classLabels map[string][]schemas.Term) {
	for _, it := range doc.ItemTypes {
		if len(it.CreatorTypes) == 0 {
			continue
		}
		var creatorTypes []string
		for _, ct := range it.CreatorTypes {
			creatorTypes = append(creatorTypes, ct.CreatorType)
			ctNode := g.term(ct.CreatorType)
			g.add(ctNode, schemas.IRI(schemas.RDFType), schemas.IRI(schemas.OWLClass))
			g.add(ctNode, schemas.IRI(schemas.RDFSSubClassOf), g.term("creatorRole"))
			for _, label := range classLabels[ct.CreatorType] {
				g.add(ctNode, schemas.IRI(schemas.RDFSLabel), label)
			}
		}
		prop := g.term("creators")
		g.add(prop, schemas.IRI(schemas.RDFType), schemas.IRI(schemas.OWLObjectProperty))
		g.add(prop, schemas.IRI(schemas.RDFSLabel), schemas.Literal("Creators"))
		g.union(prop, schemas.IRI(schemas.RDFSRange), creatorTypes)
		g.union(prop, schemas.IRI(schemas.RDFSDomain), []string{it.ItemType})
	}
}

// collectLabels inverts the locale maps into per-term label lists. Locale
// iteration order is randomized; label order across languages carries no
// meaning here.
func collectLabels(doc *Document) (classes, properties map[string][]schemas.Term) {
	classes = map[string][]schemas.Term{}
	properties = map[string][]schemas.Term{}
	for lang, locale := range doc.Locales {
		for name, label := range locale.ItemTypes {
			classes[name] = append(classes[name], schemas.LangLiteral(label, lang))
		}
		for name, label := range locale.CreatorTypes {
			classes[name] = append(classes[name], schemas.LangLiteral(label, lang))
		}
		for name, label := range locale.Fields {
			properties[name] = append(properties[name], schemas.LangLiteral(label, lang))
		}
	}
	return classes, properties
}

// graphWriter accumulates adds into one graph, capturing the first error so
// callers can chain statements without per-add checks.
type graphWriter struct {
	store schemas.QuadStore
	ctx   context.Context
	vocab string
	graph schemas.Term
	err   error
}

func (g *graphWriter) term(name string) schemas.Term {
	return schemas.SafeIRI(g.vocab+name, true)
}

func (g *graphWriter) add(s, p, o schemas.Term) {
	if g.err != nil {
		return
	}
	if _, err := g.store.Add(g.ctx, schemas.Quad{Subject: s, Predicate: p, Object: o, Graph: g.graph}); err != nil {
		g.err = err
	}
}

// union asserts predicate with a direct object for a single member, or an
// anonymous owl:unionOf class over an RDF list for several.
func (g *graphWriter) union(subject, predicate schemas.Term, members []string) {
	if len(members) == 0 {
		return
	}
	if len(members) == 1 {
		g.add(subject, predicate, g.term(members[0]))
		return
	}
	unionNode := schemas.NewBlankNode()
	g.add(subject, predicate, unionNode)
	g.add(unionNode, schemas.IRI(schemas.RDFType), schemas.IRI(schemas.OWLClass))
	g.add(unionNode, schemas.IRI(schemas.OWLUnionOf), g.list(members))
}

// list builds an RDF collection of vocabulary terms and returns its head.
func (g *graphWriter) list(members []string) schemas.Term {
	if len(members) == 0 {
		return schemas.IRI(schemas.RDFNil)
	}
	head := schemas.NewBlankNode()
	current := head
	for i, member := range members {
		g.add(current, schemas.IRI(schemas.RDFFirst), g.term(member))
		next := schemas.IRI(schemas.RDFNil)
		if i < len(members)-1 {
			next = schemas.NewBlankNode()
		}
		g.add(current, schemas.IRI(schemas.RDFRest), next)
		current = next
	}
	return head
}
