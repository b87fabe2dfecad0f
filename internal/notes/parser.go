// Package notes extracts structured statements from the HTML bodies of
// bibliographic notes. Entities are marked up with data-* attributes on spans
// and divs; extracted entities can be reconciled against knowledge-base
// nodes through the entity resolver.
package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// Attribute names recognized on annotated elements.
const (
	attrType  = "data-type"
	attrLabel = "data-label"
	attrProp  = "data-prop"
)

// defaultLinkProperty links a note to an entity it mentions when the markup
// does not name its own property.
const defaultLinkProperty = "mentions"

// Parser turns annotated note HTML into quads. An element with a data-type
// attribute declares an entity; its label comes from data-label or the
// element text, the note-to-entity predicate from data-prop, and every other
// data-* attribute becomes a literal property of the entity.
type Parser struct {
	// Namespace qualifies bare type and property names.
	Namespace string
	// Graph receives the extracted statements.
	Graph schemas.Term
}

var _ schemas.NoteParser = (*Parser)(nil)

// Parse extracts the entities annotated in the note body. Entity nodes are
// deterministic per (note, type, label), so re-parsing an unchanged note
// adds no new statements.
func (p *Parser) Parse(ctx context.Context, note schemas.Term, body string) ([]schemas.Quad, error) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse note HTML: %w", err)
	}

	var quads []schemas.Quad
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attrs := attributes(n); attrs[attrType] != "" {
				quads = append(quads, p.entity(note, n, attrs)...)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return quads, nil
}

// entity emits the statements for one annotated element.
func (p *Parser) entity(note schemas.Term, n *html.Node, attrs map[string]string) []schemas.Quad {
	label := attrs[attrLabel]
	if label == "" {
		label = strings.TrimSpace(textContent(n))
	}
	if label == "" {
		return nil
	}

	typeIRI := p.qualify(attrs[attrType])
	node := entityNode(note, attrs[attrType], label)

	linkProp := attrs[attrProp]
	if linkProp == "" {
		linkProp = defaultLinkProperty
	}

	quads := []schemas.Quad{
		{Subject: note, Predicate: p.qualify(linkProp), Object: node, Graph: p.Graph},
		{Subject: node, Predicate: schemas.IRI(schemas.RDFType), Object: typeIRI, Graph: p.Graph},
		{Subject: node, Predicate: schemas.IRI(schemas.RDFSLabel), Object: schemas.Literal(label), Graph: p.Graph},
	}

	// Remaining data-* attributes, in stable order.
	var extras []string
	for name := range attrs {
		if name != attrType && name != attrLabel && name != attrProp {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		field := strings.TrimPrefix(name, "data-")
		quads = append(quads, schemas.Quad{
			Subject:   node,
			Predicate: p.qualify(field),
			Object:    schemas.Literal(attrs[name]),
			Graph:     p.Graph,
		})
	}
	return quads
}

func (p *Parser) qualify(name string) schemas.Term {
	return qualify(p.Namespace, name)
}

// qualify resolves a bare name against the vocabulary namespace; absolute
// URIs pass through.
func qualify(namespace, name string) schemas.Term {
	if strings.HasPrefix(name, "http") {
		return schemas.SafeIRI(name, true)
	}
	return schemas.SafeIRI(namespace+name, true)
}

// entityNode mints a stable node under the note for one extracted entity.
func entityNode(note schemas.Term, typeName, label string) schemas.Term {
	ns := uuid.NewSHA1(uuid.NameSpaceURL, []byte(note.Value))
	id := uuid.NewSHA1(ns, []byte(typeName+"\x00"+label))
	return schemas.IRI(strings.TrimRight(note.Value, "/") + "/entities/" + id.String())
}

// attributes collects data-* attributes of an element.
func attributes(n *html.Node) map[string]string {
	out := map[string]string{}
	for _, a := range n.Attr {
		if strings.HasPrefix(a.Key, "data-") {
			out[a.Key] = a.Val
		}
	}
	return out
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
