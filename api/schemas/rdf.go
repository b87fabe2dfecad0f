// File: api/schemas/rdf.go
package schemas

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// TermKind discriminates the three kinds of RDF terms this server handles.
type TermKind int

const (
	// KindIRI is a named node identified by an absolute IRI.
	KindIRI TermKind = iota
	// KindBlank is an anonymous node, unique within one process run.
	KindBlank
	// KindLiteral is a literal value with an optional datatype or language tag.
	KindLiteral
)

// Term is a single RDF term. The zero value is an empty IRI and is treated as
// invalid everywhere; construct terms through the helper functions below.
//
// Term is a comparable value type on purpose: quads are deduplicated by map
// key in the memory store, and test assertions compare terms with ==.
type Term struct {
	Kind     TermKind `json:"kind"`
	Value    string   `json:"value"`
	Datatype string   `json:"datatype,omitempty"`
	Language string   `json:"language,omitempty"`
}

// Quad is the atomic unit of graph storage: one statement in one named graph.
// Graph is always an IRI term; the empty IRI denotes the default graph.
type Quad struct {
	Subject   Term `json:"subject"`
	Predicate Term `json:"predicate"`
	Object    Term `json:"object"`
	Graph     Term `json:"graph"`
}

// -- Well-known vocabulary --

const (
	RDFNS  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNS = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNS  = "http://www.w3.org/2002/07/owl#"
	XSDNS  = "http://www.w3.org/2001/XMLSchema#"
	SKOSNS = "http://www.w3.org/2004/02/skos/core#"
	PROVNS = "http://www.w3.org/ns/prov#"

	RDFType  = RDFNS + "type"
	RDFFirst = RDFNS + "first"
	RDFRest  = RDFNS + "rest"
	RDFNil   = RDFNS + "nil"

	RDFSLabel      = RDFSNS + "label"
	RDFSSubClassOf = RDFSNS + "subClassOf"
	RDFSDomain     = RDFSNS + "domain"
	RDFSRange      = RDFSNS + "range"
	RDFSLiteral    = RDFSNS + "Literal"

	OWLClass              = OWLNS + "Class"
	OWLDatatypeProperty   = OWLNS + "DatatypeProperty"
	OWLObjectProperty     = OWLNS + "ObjectProperty"
	OWLUnionOf            = OWLNS + "unionOf"
	OWLEquivalentProperty = OWLNS + "equivalentProperty"

	XSDInt      = XSDNS + "int"
	XSDGYear    = XSDNS + "gYear"
	XSDDateTime = XSDNS + "dateTime"

	SKOSAltLabel = SKOSNS + "altLabel"

	PROVGeneratedAtTime = PROVNS + "generatedAtTime"
)

// InternalIRIPrefix anchors synthetic IRIs minted for values that were
// expected to be IRIs but are not. Keeping them resolvable (and greppable)
// beats silently dropping the statement.
const InternalIRIPrefix = "http://internal.invalid/"

// IRI returns a named-node term. The caller is responsible for the value
// being an absolute IRI; use SafeIRI for untrusted input.
func IRI(value string) Term {
	return Term{Kind: KindIRI, Value: value}
}

// Literal returns a plain string literal.
func Literal(value string) Term {
	return Term{Kind: KindLiteral, Value: value}
}

// TypedLiteral returns a literal with a datatype IRI.
func TypedLiteral(value, datatype string) Term {
	return Term{Kind: KindLiteral, Value: value, Datatype: datatype}
}

// LangLiteral returns a language-tagged literal.
func LangLiteral(value, language string) Term {
	return Term{Kind: KindLiteral, Value: value, Language: language}
}

var blankCounter atomic.Uint64

// NewBlankNode mints a process-unique anonymous node.
func NewBlankNode() Term {
	return Term{Kind: KindBlank, Value: fmt.Sprintf("b%d", blankCounter.Add(1))}
}

// Blank returns a blank node with an explicit label, used when round-tripping
// serialized data that already carries blank node identifiers.
func Blank(label string) Term {
	return Term{Kind: KindBlank, Value: label}
}

// IsIRI reports whether the term is a named node.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsBlank reports whether the term is an anonymous node.
func (t Term) IsBlank() bool { return t.Kind == KindBlank }

// IsLiteral reports whether the term is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// IsZero reports whether the term is the invalid zero value.
func (t Term) IsZero() bool { return t.Value == "" && t.Kind == KindIRI }

// String renders the term in an N-Triples-like form for logs and errors.
func (t Term) String() string {
	switch t.Kind {
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		switch {
		case t.Language != "":
			return fmt.Sprintf("%q@%s", t.Value, t.Language)
		case t.Datatype != "":
			return fmt.Sprintf("%q^^<%s>", t.Value, t.Datatype)
		default:
			return fmt.Sprintf("%q", t.Value)
		}
	default:
		return "<" + t.Value + ">"
	}
}

// iriSafe is the set of reserved characters preserved when escaping an IRI,
// mirroring the tolerant escaping the upstream Zotero exports require.
const iriSafe = ":/#?&=%"

// SafeIRI sanitizes an untrusted string into a usable named node. Values
// without a URI scheme are either rehomed under InternalIRIPrefix (when
// enforce is true) or degraded to a plain literal. Invalid characters are
// percent-escaped in place.
func SafeIRI(value string, enforce bool) Term {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" {
		if enforce {
			return IRI(InternalIRIPrefix + url.QueryEscape(value))
		}
		return Literal(value)
	}
	return IRI(escapeIRI(value))
}

// escapeIRI percent-escapes characters that are not legal in an IRI while
// leaving reserved delimiters alone. Existing percent escapes pass through.
func escapeIRI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(iriSafe, r), strings.ContainsRune("-._~!$'()*+,;@", r):
			b.WriteRune(r)
		case r > 127:
			// Non-ASCII is legal in IRIs; pass through untouched.
			b.WriteRune(r)
		default:
			b.WriteString(url.QueryEscape(string(r)))
		}
	}
	return b.String()
}
