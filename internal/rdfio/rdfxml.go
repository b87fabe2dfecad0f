package rdfio

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/beevik/etree"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

const xmlNS = "http://www.w3.org/XML/1998/namespace"

// DecodeRDFXML reads the RDF/XML subset produced by Zotero exports: typed
// node elements, nested descriptions, rdf:resource references and literal
// property elements with xml:lang or rdf:datatype. Relative references in
// rdf:about and rdf:resource resolve against baseIRI.
func DecodeRDFXML(r io.Reader, graph schemas.Term, baseIRI string) ([]schemas.Quad, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to parse RDF/XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("RDF/XML document has no root element")
	}

	p := &xmlParser{graph: graph, base: baseIRI}
	scope := p.pushScope(root, xmlScope{ns: map[string]string{"xml": xmlNS}})

	if scope.resolveName(root.Space) == schemas.RDFNS && root.Tag == "RDF" {
		for _, child := range root.ChildElements() {
			if _, err := p.nodeElement(child, scope); err != nil {
				return nil, err
			}
		}
	} else {
		// A bare node element without the rdf:RDF wrapper.
		if _, err := p.nodeElement(root, scope); err != nil {
			return nil, err
		}
	}
	return p.quads, nil
}

type xmlParser struct {
	graph schemas.Term
	base  string
	quads []schemas.Quad
}

// xmlScope carries the in-scope namespace bindings and language tag.
type xmlScope struct {
	ns   map[string]string
	lang string
}

func (s xmlScope) resolveName(prefix string) string {
	return s.ns[prefix]
}

// pushScope extends the parent scope with the element's own xmlns and
// xml:lang declarations, copying the binding map only when needed.
func (p *xmlParser) pushScope(el *etree.Element, parent xmlScope) xmlScope {
	scope := parent
	for _, attr := range el.Attr {
		switch {
		case attr.Space == "xmlns":
			scope = scope.withBinding(attr.Key, attr.Value)
		case attr.Space == "" && attr.Key == "xmlns":
			scope = scope.withBinding("", attr.Value)
		case attr.Space == "xml" && attr.Key == "lang":
			scope.lang = attr.Value
		}
	}
	return scope
}

func (s xmlScope) withBinding(prefix, ns string) xmlScope {
	bound := make(map[string]string, len(s.ns)+1)
	for k, v := range s.ns {
		bound[k] = v
	}
	bound[prefix] = ns
	return xmlScope{ns: bound, lang: s.lang}
}

// nodeElement materializes one description element and returns its subject.
func (p *xmlParser) nodeElement(el *etree.Element, parent xmlScope) (schemas.Term, error) {
	scope := p.pushScope(el, parent)
	subject := p.subjectOf(el, scope)

	// A typed node element carries its type in the element name.
	elNS := scope.resolveName(el.Space)
	if !(elNS == schemas.RDFNS && el.Tag == "Description") {
		p.add(subject, schemas.IRI(schemas.RDFType), schemas.SafeIRI(elNS+el.Tag, true))
	}

	// Property attributes: plain attributes on a node element are shorthand
	// for literal-valued statements.
	for _, attr := range el.Attr {
		attrNS := scope.resolveName(attr.Space)
		if attr.Space == "xmlns" || attr.Key == "xmlns" && attr.Space == "" ||
			attrNS == schemas.RDFNS || attrNS == xmlNS || attrNS == "" {
			continue
		}
		p.add(subject, schemas.SafeIRI(attrNS+attr.Key, true), literalIn(scope, attr.Value, ""))
	}

	for _, child := range el.ChildElements() {
		if err := p.propertyElement(subject, child, scope); err != nil {
			return schemas.Term{}, err
		}
	}
	return subject, nil
}

func (p *xmlParser) propertyElement(subject schemas.Term, el *etree.Element, parent xmlScope) error {
	scope := p.pushScope(el, parent)
	predicate := schemas.SafeIRI(scope.resolveName(el.Space)+el.Tag, true)

	if v, ok := p.rdfAttr(el, scope, "resource"); ok {
		p.add(subject, predicate, schemas.SafeIRI(p.resolve(v), true))
		return nil
	}
	if v, ok := p.rdfAttr(el, scope, "nodeID"); ok {
		p.add(subject, predicate, schemas.Blank(v))
		return nil
	}
	if v, ok := p.rdfAttr(el, scope, "parseType"); ok && v == "Resource" {
		node := schemas.NewBlankNode()
		p.add(subject, predicate, node)
		for _, child := range el.ChildElements() {
			if err := p.propertyElement(node, child, scope); err != nil {
				return err
			}
		}
		return nil
	}

	if children := el.ChildElements(); len(children) > 0 {
		for _, child := range children {
			object, err := p.nodeElement(child, scope)
			if err != nil {
				return err
			}
			p.add(subject, predicate, object)
		}
		return nil
	}

	datatype, _ := p.rdfAttr(el, scope, "datatype")
	p.add(subject, predicate, literalIn(scope, el.Text(), datatype))
	return nil
}

// subjectOf picks the subject term for a node element: rdf:about, rdf:ID,
// rdf:nodeID, or a fresh blank node when none is given.
func (p *xmlParser) subjectOf(el *etree.Element, scope xmlScope) schemas.Term {
	if v, ok := p.rdfAttr(el, scope, "about"); ok {
		return schemas.SafeIRI(p.resolve(v), true)
	}
	if v, ok := p.rdfAttr(el, scope, "ID"); ok {
		return schemas.SafeIRI(p.resolve("#"+v), true)
	}
	if v, ok := p.rdfAttr(el, scope, "nodeID"); ok {
		return schemas.Blank(v)
	}
	return schemas.NewBlankNode()
}

func (p *xmlParser) rdfAttr(el *etree.Element, scope xmlScope, key string) (string, bool) {
	for _, attr := range el.Attr {
		if attr.Key == key && scope.resolveName(attr.Space) == schemas.RDFNS {
			return attr.Value, true
		}
	}
	return "", false
}

// resolve applies the base IRI to relative references. Absolute references
// and inputs without a configured base pass through untouched.
func (p *xmlParser) resolve(ref string) string {
	if p.base == "" {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}
	base, err := url.Parse(p.base)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func (p *xmlParser) add(s, pred, o schemas.Term) {
	p.quads = append(p.quads, schemas.Quad{Subject: s, Predicate: pred, Object: o, Graph: p.graph})
}

func literalIn(scope xmlScope, value, datatype string) schemas.Term {
	value = strings.TrimSpace(value)
	switch {
	case datatype != "":
		return schemas.TypedLiteral(value, datatype)
	case scope.lang != "":
		return schemas.LangLiteral(value, scope.lang)
	default:
		return schemas.Literal(value)
	}
}
