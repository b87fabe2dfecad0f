package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/config"
)

func TestApplyTypes(t *testing.T) {
	ctx := context.Background()
	rdfType := schemas.IRI(schemas.RDFType)
	node := schemas.IRI(testBaseURL + "/items/T1")

	t.Run("default type when no type fields configured", func(t *testing.T) {
		m, st := newTestMapper(t)
		target := testTarget(config.MappingConfig{DefaultType: "item"})

		require.NoError(t, m.ApplyTypes(ctx, target, node, map[string]any{"itemType": "book"}))
		got := mustMatch(t, st, &node, &rdfType, nil, &assertionGraph)
		require.Len(t, got, 1)
		assert.Equal(t, ns("item"), got[0].Object)
	})

	t.Run("comma-packed type field yields one type per token", func(t *testing.T) {
		m, st := newTestMapper(t)
		target := testTarget(config.MappingConfig{TypeFields: []string{"itemType"}})

		require.NoError(t, m.ApplyTypes(ctx, target, node, map[string]any{
			"itemType": "book, manuscript",
		}))
		got := mustMatch(t, st, &node, &rdfType, nil, &assertionGraph)
		require.Len(t, got, 2)
		assert.Equal(t, ns("book"), got[0].Object)
		assert.Equal(t, ns("manuscript"), got[1].Object)
	})

	t.Run("underscore prefix is a literal constant, absolute URIs pass through", func(t *testing.T) {
		m, st := newTestMapper(t)
		target := testTarget(config.MappingConfig{
			TypeFields: []string{"_http://purl.org/ontology/bibo/Book"},
		})

		require.NoError(t, m.ApplyTypes(ctx, target, node, map[string]any{}))
		got := mustMatch(t, st, &node, &rdfType, nil, &assertionGraph)
		require.Len(t, got, 1)
		assert.Equal(t, "http://purl.org/ontology/bibo/Book", got[0].Object.Value)
	})

	t.Run("idempotent", func(t *testing.T) {
		m, st := newTestMapper(t)
		target := testTarget(config.MappingConfig{TypeFields: []string{"itemType"}})
		record := map[string]any{"itemType": "book"}

		require.NoError(t, m.ApplyTypes(ctx, target, node, record))
		require.NoError(t, m.ApplyTypes(ctx, target, node, record))
		assert.Len(t, mustMatch(t, st, &node, &rdfType, nil, &assertionGraph), 1)
	})
}

func TestApplyAdditionalProperties(t *testing.T) {
	ctx := context.Background()
	node := schemas.IRI(testBaseURL + "/items/T2")

	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{
		AdditionalProperties: []config.AdditionalPropertySpec{
			{Property: "source", Value: "_zotero"},
			{Property: "version", Value: "version"},
			{Property: "homepage", Value: "url", NamedNode: true},
			{Property: "missing", Value: "absentField"},
		},
	})

	record := map[string]any{
		"version": float64(42),
		"url":     "https://example.org/home",
	}
	require.NoError(t, m.ApplyAdditionalProperties(ctx, target, node, record))

	srcPred := ns("source")
	got := mustMatch(t, st, &node, &srcPred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.Literal("zotero"), got[0].Object)

	verPred := ns("version")
	got = mustMatch(t, st, &node, &verPred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.Literal("42"), got[0].Object)

	homePred := ns("homepage")
	got = mustMatch(t, st, &node, &homePred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.True(t, got[0].Object.IsIRI())

	missPred := ns("missing")
	assert.Empty(t, mustMatch(t, st, &node, &missPred, nil, &assertionGraph),
		"falsy lookups skip the spec")
}

func TestItemAndCollectionNodes(t *testing.T) {
	rec := schemas.Record{"data": map[string]any{"key": "K1"}}
	assert.Equal(t, schemas.IRI(testBaseURL+"/items/K1"), ItemNode(testBaseURL, rec))
	assert.Equal(t, schemas.IRI(testBaseURL+"/collections/K1"), CollectionNode(testBaseURL+"/", rec))

	// Records without a key get a fresh random identifier.
	a := ItemNode(testBaseURL, schemas.Record{})
	b := ItemNode(testBaseURL, schemas.Record{})
	assert.NotEqual(t, a, b)
	assert.Contains(t, a.Value, testBaseURL+"/items/")
}

func TestItemLabel(t *testing.T) {
	rec := schemas.Record{"data": map[string]any{
		"title": "De re metallica",
		"date":  "1556",
		"creators": []any{
			map[string]any{"lastName": "Agricola", "firstName": "Georgius"},
			map[string]any{"lastName": "Other"},
		},
	}}
	assert.Equal(t, "Agricola, Georgius: De re metallica (1556)", ItemLabel(rec))

	assert.Equal(t, "Untitled", ItemLabel(schemas.Record{"data": map[string]any{"title": "Untitled"}}))
	assert.Equal(t, "", ItemLabel(schemas.Record{}))
}
