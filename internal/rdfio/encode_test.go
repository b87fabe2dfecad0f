package rdfio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

func TestWriteNQuads(t *testing.T) {
	graph := schemas.IRI("http://example.org/graph")
	quads := []schemas.Quad{
		{
			Subject:   schemas.IRI("http://example.org/s"),
			Predicate: schemas.IRI(schemas.RDFSLabel),
			Object:    schemas.Literal(`say "hi"` + "\nbye"),
			Graph:     graph,
		},
		{
			Subject:   schemas.Blank("b1"),
			Predicate: schemas.IRI("http://example.org/p"),
			Object:    schemas.TypedLiteral("2020", schemas.XSDGYear),
			Graph:     graph,
		},
		{
			Subject:   schemas.IRI("http://example.org/s"),
			Predicate: schemas.IRI("http://example.org/p"),
			Object:    schemas.LangLiteral("Titel", "de"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteNQuads(&buf, quads))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		`<http://example.org/s> <`+schemas.RDFSLabel+`> "say \"hi\"\nbye" <http://example.org/graph> .`,
		lines[0])
	assert.Equal(t,
		`_:b1 <http://example.org/p> "2020"^^<`+schemas.XSDGYear+`> <http://example.org/graph> .`,
		lines[1])
	assert.Equal(t,
		`<http://example.org/s> <http://example.org/p> "Titel"@de .`,
		lines[2], "default graph statements omit the graph term")
}

func TestWriteNTriplesDropsGraphs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNTriples(&buf, []schemas.Quad{{
		Subject:   schemas.IRI("http://example.org/s"),
		Predicate: schemas.IRI("http://example.org/p"),
		Object:    schemas.IRI("http://example.org/o"),
		Graph:     schemas.IRI("http://example.org/graph"),
	}}))
	assert.Equal(t,
		"<http://example.org/s> <http://example.org/p> <http://example.org/o> .\n",
		buf.String())
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		path string
		want Format
		ok   bool
	}{
		{"dump.nt", FormatNTriples, true},
		{"dump.NQ", FormatNQuads, true},
		{"graph.ttl", FormatTurtle, true},
		{"export.rdf", FormatRDFXML, true},
		{"export.xml", FormatRDFXML, true},
		{"snapshot.trig", FormatTriG, true},
		{"items.json", FormatJSON, true},
		{"notes.txt", "", false},
		{"noext", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectFormat(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, err := Decode(strings.NewReader(""), Format("hdt"), schemas.IRI("http://example.org/g"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported RDF format")
}
