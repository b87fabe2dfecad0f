package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/config"
	"github.com/ch-sander/zotero-rdf-server/internal/identity"
	"github.com/ch-sander/zotero-rdf-server/internal/store"
)

const (
	testNS      = config.ZoteroNS
	testBaseURL = "https://example.org/users/1"
)

var (
	assertionGraph = schemas.IRI("https://example.org/users/1/graph")
	testKBGraph    = schemas.IRI("https://example.org/kb")
)

func newTestMapper(t *testing.T) (*Mapper, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(zap.NewNop())
	return New(st, identity.NewResolver(zap.NewNop()), zap.NewNop()), st
}

func testTarget(mapping config.MappingConfig) *Target {
	if mapping.Namespace == "" {
		mapping.Namespace = testNS
	}
	if mapping.Threshold == 0 {
		mapping.Threshold = 90
	}
	if len(mapping.EntityFields) == 0 {
		mapping.EntityFields = []string{"place", "publisher", "series"}
	}
	return &Target{
		Graph:   assertionGraph,
		KBGraph: testKBGraph,
		BaseURL: testBaseURL,
		Mapping: mapping,
	}
}

func ns(name string) schemas.Term { return schemas.IRI(testNS + name) }

func mustMatch(t *testing.T, st *store.MemoryStore, s, p, o, g *schemas.Term) []schemas.Quad {
	t.Helper()
	got, err := st.Match(context.Background(), s, p, o, g)
	require.NoError(t, err)
	return got
}

func TestMapRecordEndToEnd(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{
		White:      []string{"creators", "date", "tags", "title"},
		TypeFields: []string{"itemType"},
	})

	record := map[string]any{
		"key":      "ABC123",
		"itemType": "book",
		"creators": []any{map[string]any{
			"lastName": "Smith", "firstName": "John", "creatorType": "author",
		}},
		"date": "2020",
		"tags": []any{map[string]any{"tag": "history"}},
	}

	item := ItemNode(testBaseURL, schemas.Record(record))
	assert.Equal(t, schemas.IRI("https://example.org/users/1/items/ABC123"), item)

	require.NoError(t, m.ApplyTypes(ctx, target, item, record))
	require.NoError(t, m.MapRecord(ctx, target, item, record))

	rdfType := schemas.IRI(schemas.RDFType)

	// The item is typed book.
	book := ns("book")
	assert.Len(t, mustMatch(t, st, &item, &rdfType, &book, &assertionGraph), 1)

	// One year-typed date literal.
	datePred := ns("date")
	dates := mustMatch(t, st, &item, &datePred, nil, &assertionGraph)
	require.Len(t, dates, 1)
	assert.Equal(t, schemas.TypedLiteral("2020", schemas.XSDGYear), dates[0].Object)

	// One creator role node linking to one person entity.
	creatorsPred := ns("creators")
	roles := mustMatch(t, st, &item, &creatorsPred, nil, &assertionGraph)
	require.Len(t, roles, 1)
	role := roles[0].Object
	require.True(t, role.IsBlank())

	roleType := ns("creatorRole")
	assert.Len(t, mustMatch(t, st, &role, &rdfType, &roleType, &assertionGraph), 1)
	authorType := ns("author")
	assert.Len(t, mustMatch(t, st, &role, &rdfType, &authorType, &assertionGraph), 1)

	hasCreator := ns("hasCreator")
	links := mustMatch(t, st, &role, &hasCreator, nil, &assertionGraph)
	require.Len(t, links, 1)
	person := links[0].Object
	assert.Equal(t, identity.EntityID(testKBGraph, "person", "Smith, John"), person)

	personType := ns("person")
	assert.Len(t, mustMatch(t, st, &person, &rdfType, &personType, &testKBGraph), 1)

	// One tag entity in the knowledge base, linked from the item.
	tagsPred := ns("tags")
	tagLinks := mustMatch(t, st, &item, &tagsPred, nil, &assertionGraph)
	require.Len(t, tagLinks, 1)
	tagNode := tagLinks[0].Object
	assert.Equal(t, identity.EntityID(testKBGraph, "tag", "history"), tagNode)

	label := schemas.IRI(schemas.RDFSLabel)
	tagLabels := mustMatch(t, st, &tagNode, &label, nil, &testKBGraph)
	require.Len(t, tagLabels, 1)
	assert.Equal(t, schemas.Literal("history"), tagLabels[0].Object)

	// key and itemType were outside the allowlist.
	keyPred := ns("key")
	assert.Empty(t, mustMatch(t, st, &item, &keyPred, nil, &assertionGraph))
}

func TestMapRecordIdempotentWithoutClearing(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{White: []string{"publisher", "place"}})

	record := map[string]any{"publisher": "Oxford University Press", "place": "Berlin"}
	subject := schemas.IRI(testBaseURL + "/items/X1")

	require.NoError(t, m.MapRecord(ctx, target, subject, record))
	first, err := st.Len(ctx)
	require.NoError(t, err)

	require.NoError(t, m.MapRecord(ctx, target, subject, record))
	second, err := st.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-mapping identical input must not grow the graph")

	// Exactly one publisher entity exists.
	rdfType := schemas.IRI(schemas.RDFType)
	pubType := ns("publisher")
	assert.Len(t, mustMatch(t, st, nil, &rdfType, &pubType, &testKBGraph), 1)
}

func TestAllowlistPrecedence(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	// The same field is allowlisted and blocklisted: the allowlist wins.
	target := testTarget(config.MappingConfig{
		White: []string{"title"},
		Black: []string{"title"},
	})

	subject := schemas.IRI(testBaseURL + "/items/X2")
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{"title": "De re metallica", "extra": "nope"}))

	titlePred := ns("title")
	assert.Len(t, mustMatch(t, st, &subject, &titlePred, nil, &assertionGraph), 1)
	extraPred := ns("extra")
	assert.Empty(t, mustMatch(t, st, &subject, &extraPred, nil, &assertionGraph))
}

func TestBlocklistWithoutAllowlist(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{Black: []string{"version"}})

	subject := schemas.IRI(testBaseURL + "/items/X3")
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{"version": "12", "title": "T"}))

	versionPred := ns("version")
	assert.Empty(t, mustMatch(t, st, &subject, &versionPred, nil, &assertionGraph))
	titlePred := ns("title")
	assert.Len(t, mustMatch(t, st, &subject, &titlePred, nil, &assertionGraph), 1)
}

func TestTagExactness(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})

	subject := schemas.IRI(testBaseURL + "/items/X4")
	record := map[string]any{"tags": []any{
		map[string]any{"tag": "History"},
		map[string]any{"tag": "history"},
	}}
	require.NoError(t, m.MapRecord(ctx, target, subject, record))

	// Case variants are distinct tags: exact keying, no fuzzy matching.
	rdfType := schemas.IRI(schemas.RDFType)
	tagType := ns("tag")
	assert.Len(t, mustMatch(t, st, nil, &rdfType, &tagType, &testKBGraph), 2)
}

func TestTagExtraPropertiesOnlyOnFirstCreation(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})

	subject := schemas.IRI(testBaseURL + "/items/X5")
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"tags": []any{map[string]any{"tag": "alchemy", "type": float64(1)}},
	}))

	tagNode := identity.EntityID(testKBGraph, "tag", "alchemy")
	typePred := ns("type")
	props := mustMatch(t, st, &tagNode, &typePred, nil, &testKBGraph)
	require.Len(t, props, 1)
	assert.Equal(t, schemas.Literal("1"), props[0].Object)

	// A later occurrence with different extras does not touch the entity.
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"tags": []any{map[string]any{"tag": "alchemy", "type": float64(2)}},
	}))
	props = mustMatch(t, st, &tagNode, &typePred, nil, &testKBGraph)
	require.Len(t, props, 1)
	assert.Equal(t, schemas.Literal("1"), props[0].Object)
}

func TestTagAndEntityWithSharedLabelStayDistinct(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{White: []string{"place", "tags"}})

	subject := schemas.IRI(testBaseURL + "/items/X6")
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"place": "Berlin",
		"tags":  []any{map[string]any{"tag": "Berlin"}},
	}))

	rdfType := schemas.IRI(schemas.RDFType)
	placeType := ns("place")
	places := mustMatch(t, st, nil, &rdfType, &placeType, &testKBGraph)
	require.Len(t, places, 1)

	tagType := ns("tag")
	tags := mustMatch(t, st, nil, &rdfType, &tagType, &testKBGraph)
	require.Len(t, tags, 1, "the tag keeps its own entity despite the shared label")
	assert.NotEqual(t, places[0].Subject, tags[0].Subject, "one label, two classes, two nodes")

	// The tag entity carries its class and label in full.
	tagNode := tags[0].Subject
	label := schemas.IRI(schemas.RDFSLabel)
	labels := mustMatch(t, st, &tagNode, &label, nil, &testKBGraph)
	require.Len(t, labels, 1)
	assert.Equal(t, schemas.Literal("Berlin"), labels[0].Object)

	// The item links to each under its own predicate.
	placePred := ns("place")
	placeLinks := mustMatch(t, st, &subject, &placePred, nil, &assertionGraph)
	require.Len(t, placeLinks, 1)
	assert.Equal(t, places[0].Subject, placeLinks[0].Object)

	tagsPred := ns("tags")
	tagLinks := mustMatch(t, st, &subject, &tagsPred, nil, &assertionGraph)
	require.Len(t, tagLinks, 1)
	assert.Equal(t, tagNode, tagLinks[0].Object)
}

func TestCreatorCommaStaysOneEntity(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})

	subject := schemas.IRI(testBaseURL + "/items/X6")
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"creators": []any{map[string]any{"name": "Smith, John"}},
	}))

	rdfType := schemas.IRI(schemas.RDFType)
	personType := ns("person")
	persons := mustMatch(t, st, nil, &rdfType, &personType, &testKBGraph)
	assert.Len(t, persons, 1, "a comma in a creator label must not split the entity")
}

func TestEntityFieldSemicolonSplitting(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})

	subject := schemas.IRI(testBaseURL + "/items/X7")
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"place": "Berlin; Leipzig",
	}))

	placePred := ns("place")
	links := mustMatch(t, st, &subject, &placePred, nil, &assertionGraph)
	assert.Len(t, links, 2)

	rdfType := schemas.IRI(schemas.RDFType)
	placeType := ns("place")
	assert.Len(t, mustMatch(t, st, nil, &rdfType, &placeType, &testKBGraph), 2)

	// Commas do not split.
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"publisher": "Harcourt, Brace and Company",
	}))
	pubType := ns("publisher")
	assert.Len(t, mustMatch(t, st, nil, &rdfType, &pubType, &testKBGraph), 1)
}

func TestLinkFieldsAndDOI(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})
	subject := schemas.IRI(testBaseURL + "/items/X8")

	t.Run("absolute url becomes a named node, never split", func(t *testing.T) {
		require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
			"url": "https://example.org/a,b;c",
		}))
		urlPred := ns("url")
		got := mustMatch(t, st, &subject, &urlPred, nil, &assertionGraph)
		require.Len(t, got, 1)
		assert.True(t, got[0].Object.IsIRI())
		assert.Equal(t, "https://example.org/a,b;c", got[0].Object.Value)
	})

	t.Run("bare doi is resolved against doi.org", func(t *testing.T) {
		require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
			"doi": "10.1000/182",
		}))
		doiPred := ns("doi")
		got := mustMatch(t, st, &subject, &doiPred, nil, &assertionGraph)
		require.Len(t, got, 1)
		assert.Equal(t, "https://doi.org/10.1000/182", got[0].Object.Value)
	})

	t.Run("short non-url doi falls through to a literal", func(t *testing.T) {
		require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
			"doi": "10.1",
		}))
		doiPred := ns("doi")
		got := mustMatch(t, st, &subject, &doiPred, nil, &assertionGraph)
		require.Len(t, got, 2)
		assert.Equal(t, schemas.Literal("10.1"), got[1].Object)
	})
}

func TestRestrictedMappingBypassesEntities(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{RDFMapping: []string{"series"}})
	subject := schemas.IRI(testBaseURL + "/items/X9")

	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"place":  "Berlin",
		"series": "Monumenta Germaniae Historica",
		"extra":  map[string]any{"nested": "value"},
	}))

	// place is off the restriction list: plain literal, no entity.
	placePred := ns("place")
	got := mustMatch(t, st, &subject, &placePred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.Literal("Berlin"), got[0].Object)

	// series is listed: resolved to an entity.
	seriesPred := ns("series")
	got = mustMatch(t, st, &subject, &seriesPred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.True(t, got[0].Object.IsIRI())

	// unlisted object fields are skipped without descending.
	extraPred := ns("extra")
	assert.Empty(t, mustMatch(t, st, &subject, &extraPred, nil, &assertionGraph))
}

func TestLanguageTaggedTitleEmitsNothing(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)

	target := testTarget(config.MappingConfig{})
	target.LanguageHint = "de"
	subject := schemas.IRI(testBaseURL + "/items/X10")

	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"title": "Von der Freiheit",
	}))
	titlePred := ns("title")
	assert.Empty(t, mustMatch(t, st, &subject, &titlePred, nil, &assertionGraph),
		"with a language hint the title branch stores nothing")

	// Without a hint the title is an ordinary literal.
	target.LanguageHint = ""
	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"title": "Von der Freiheit",
	}))
	got := mustMatch(t, st, &subject, &titlePred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.Literal("Von der Freiheit"), got[0].Object)
}

func TestLanguageHint(t *testing.T) {
	m := config.MappingConfig{LanguageMap: config.DefaultLanguageMap}

	assert.Equal(t, "de", LanguageHint(m, schemas.Record{"data": map[string]any{"language": "Deutsch"}}))
	assert.Equal(t, "en", LanguageHint(m, schemas.Record{"language": "eng"}))
	assert.Equal(t, "und", LanguageHint(m, schemas.Record{"language": "klingon"}))
	assert.Equal(t, "", LanguageHint(m, schemas.Record{}))
}

func TestNestedObjectExpansion(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})
	subject := schemas.IRI(testBaseURL + "/items/X11")

	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"meta": map[string]any{"numPages": "312", "note": "inner"},
	}))

	metaPred := ns("meta")
	links := mustMatch(t, st, &subject, &metaPred, nil, &assertionGraph)
	require.Len(t, links, 1)
	inner := links[0].Object
	require.True(t, inner.IsBlank())

	numPred := ns("numPages")
	got := mustMatch(t, st, &inner, &numPred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.TypedLiteral("312", schemas.XSDInt), got[0].Object)
}

func TestContainerReferences(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})
	subject := schemas.IRI(testBaseURL + "/items/X12")

	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"collections":    []any{"COLL1", "COLL2"},
		"parentItem":     "PAR1",
		"timestampField": nil,
	}))

	collPred := ns("collections")
	got := mustMatch(t, st, &subject, &collPred, nil, &assertionGraph)
	require.Len(t, got, 2)
	assert.Equal(t, testBaseURL+"/collections/COLL1", got[0].Object.Value)

	parentPred := ns("parentItem")
	got = mustMatch(t, st, &subject, &parentPred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.Equal(t, testBaseURL+"/items/PAR1", got[0].Object.Value)
}

func TestTimestampPassthrough(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMapper(t)
	target := testTarget(config.MappingConfig{})
	subject := schemas.IRI(testBaseURL + "/items/X13")

	require.NoError(t, m.MapRecord(ctx, target, subject, map[string]any{
		"dateAdded": "definitely not a timestamp",
	}))
	pred := ns("dateAdded")
	got := mustMatch(t, st, &subject, &pred, nil, &assertionGraph)
	require.Len(t, got, 1)
	assert.Equal(t, schemas.TypedLiteral("definitely not a timestamp", schemas.XSDDateTime), got[0].Object,
		"system timestamps pass through verbatim, unvalidated")
}
