package rdfio

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

func TestDecodeNTriplesAdoptsTargetGraph(t *testing.T) {
	input := `<http://example.org/items/1> <http://purl.org/dc/elements/1.1/title> "De re metallica" .
<http://example.org/items/1> <http://purl.org/dc/elements/1.1/date> "1556"^^<http://www.w3.org/2001/XMLSchema#gYear> .
<http://example.org/items/1> <http://www.w3.org/2000/01/rdf-schema#label> "Vom Bergwerk"@de .
`
	graph := schemas.IRI("https://example.org/users/1")

	got, err := Decode(strings.NewReader(input), FormatNTriples, graph, "")
	require.NoError(t, err)

	want := []schemas.Quad{
		{
			Subject:   schemas.IRI("http://example.org/items/1"),
			Predicate: schemas.IRI("http://purl.org/dc/elements/1.1/title"),
			Object:    schemas.Literal("De re metallica"),
			Graph:     graph,
		},
		{
			Subject:   schemas.IRI("http://example.org/items/1"),
			Predicate: schemas.IRI("http://purl.org/dc/elements/1.1/date"),
			Object:    schemas.TypedLiteral("1556", schemas.XSDNS+"gYear"),
			Graph:     graph,
		},
		{
			Subject:   schemas.IRI("http://example.org/items/1"),
			Predicate: schemas.IRI(schemas.RDFSLabel),
			Object:    schemas.LangLiteral("Vom Bergwerk", "de"),
			Graph:     graph,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded quads mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeNQuadsKeepsEmbeddedGraph(t *testing.T) {
	input := `<http://example.org/items/1> <http://purl.org/dc/elements/1.1/title> "Kept" <https://example.org/groups/2> .
<http://example.org/items/2> <http://purl.org/dc/elements/1.1/title> "Fallback" .
`
	fallback := schemas.IRI("https://example.org/users/1")

	got, err := Decode(strings.NewReader(input), FormatNQuads, fallback, "")
	require.NoError(t, err)

	want := []schemas.Quad{
		{
			Subject:   schemas.IRI("http://example.org/items/1"),
			Predicate: schemas.IRI("http://purl.org/dc/elements/1.1/title"),
			Object:    schemas.Literal("Kept"),
			Graph:     schemas.IRI("https://example.org/groups/2"),
		},
		{
			Subject:   schemas.IRI("http://example.org/items/2"),
			Predicate: schemas.IRI("http://purl.org/dc/elements/1.1/title"),
			Object:    schemas.Literal("Fallback"),
			Graph:     fallback,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded quads mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTurtleExpandsPrefixes(t *testing.T) {
	input := `@prefix dc: <http://purl.org/dc/elements/1.1/> .
<http://example.org/items/1> dc:title "Abbreviated" .
`
	graph := schemas.IRI("https://example.org/users/1")

	got, err := Decode(strings.NewReader(input), FormatTurtle, graph, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "http://purl.org/dc/elements/1.1/title", got[0].Predicate.Value)
	require.Equal(t, schemas.Literal("Abbreviated"), got[0].Object)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Decode(strings.NewReader("<unterminated"), FormatNTriples, schemas.IRI("g"), "")
	require.Error(t, err)
}
