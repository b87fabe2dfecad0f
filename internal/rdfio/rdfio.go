// Package rdfio loads serialized RDF into the quad store and serializes the
// store back out: N-Triples, N-Quads and Turtle through the knakk decoder,
// RDF/XML (the Zotero export format) through a dedicated importer.
package rdfio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	krdf "github.com/knakk/rdf"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// Format identifies a serialization this package can read.
type Format string

const (
	FormatNTriples Format = "nt"
	FormatNQuads   Format = "nq"
	FormatTurtle   Format = "ttl"
	FormatRDFXML   Format = "rdf"
	FormatTriG     Format = "trig"
	FormatJSON     Format = "json"
)

// DetectFormat maps a file name to its format by extension. The boolean is
// false for extensions this package does not recognize.
func DetectFormat(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nt":
		return FormatNTriples, true
	case ".nq":
		return FormatNQuads, true
	case ".ttl":
		return FormatTurtle, true
	case ".rdf", ".xml":
		return FormatRDFXML, true
	case ".trig":
		return FormatTriG, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// Decode reads serialized RDF into quads targeted at the given graph.
// Triple formats adopt the target graph wholesale; N-Quads keeps each
// statement's own graph, falling back to the target for the default graph.
// baseIRI resolves relative references in RDF/XML input.
func Decode(r io.Reader, format Format, graph schemas.Term, baseIRI string) ([]schemas.Quad, error) {
	switch format {
	case FormatNTriples:
		return decodeTriples(r, krdf.NTriples, graph)
	case FormatTurtle:
		return decodeTriples(r, krdf.Turtle, graph)
	case FormatNQuads, FormatTriG:
		// The TriG subset produced by quad exports decodes as N-Quads.
		return decodeQuads(r, graph)
	case FormatRDFXML:
		return DecodeRDFXML(r, graph, baseIRI)
	default:
		return nil, fmt.Errorf("unsupported RDF format %q", format)
	}
}

func decodeTriples(r io.Reader, format krdf.Format, graph schemas.Term) ([]schemas.Quad, error) {
	dec := krdf.NewTripleDecoder(r, format)
	var out []schemas.Quad
	for {
		tr, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode triple %d: %w", len(out)+1, err)
		}
		out = append(out, schemas.Quad{
			Subject:   fromKnakk(tr.Subj),
			Predicate: fromKnakk(tr.Pred),
			Object:    fromKnakk(tr.Obj),
			Graph:     graph,
		})
	}
	return out, nil
}

func decodeQuads(r io.Reader, fallback schemas.Term) ([]schemas.Quad, error) {
	dec := krdf.NewQuadDecoder(r, krdf.NQuads)
	var out []schemas.Quad
	for {
		q, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode quad %d: %w", len(out)+1, err)
		}
		graph := fallback
		if q.Ctx != nil {
			if g := fromKnakk(q.Ctx); g.IsIRI() && g.Value != "" {
				graph = g
			}
		}
		out = append(out, schemas.Quad{
			Subject:   fromKnakk(q.Subj),
			Predicate: fromKnakk(q.Pred),
			Object:    fromKnakk(q.Obj),
			Graph:     graph,
		})
	}
	return out, nil
}

// fromKnakk converts a decoded term into this server's term model.
func fromKnakk(t krdf.Term) schemas.Term {
	switch t.Type() {
	case krdf.TermBlank:
		return schemas.Blank(strings.TrimPrefix(t.String(), "_:"))
	case krdf.TermLiteral:
		lit, ok := t.(krdf.Literal)
		if !ok {
			return schemas.Literal(t.String())
		}
		if lang := lit.Lang(); lang != "" {
			return schemas.LangLiteral(lit.String(), lang)
		}
		dt := lit.DataType.String()
		if dt != "" && dt != schemas.XSDNS+"string" {
			return schemas.TypedLiteral(lit.String(), dt)
		}
		return schemas.Literal(lit.String())
	default:
		return schemas.IRI(t.String())
	}
}
