package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

func TestClassifyDate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  schemas.Term
	}{
		{"bare year", "2020", schemas.TypedLiteral("2020", schemas.XSDGYear)},
		{"month-name date", "March 3, 2020", schemas.TypedLiteral("2020-03-03", schemas.XSDDateTime)},
		{"iso date", "2020-03-03", schemas.TypedLiteral("2020-03-03", schemas.XSDDateTime)},
		{"day-first dotted date", "03.04.2020", schemas.TypedLiteral("2020-04-03", schemas.XSDDateTime)},
		{"year range keeps start", "1999-2001", schemas.TypedLiteral("1999", schemas.XSDGYear)},
		{"en-dash range", "1999 – 2001", schemas.TypedLiteral("1999", schemas.XSDGYear)},
		{"year embedded in text", "ca. 1874, second edition", schemas.TypedLiteral("1874", schemas.XSDGYear)},
		{"free text", "not a date", schemas.Literal("not a date")},
		{"exact four digits is a year even outside 1500-2100", "1215", schemas.TypedLiteral("1215", schemas.XSDGYear)},
		{"embedded year outside 1500-2100 is not detected", "around 1215 or so", schemas.Literal("around 1215 or so")},
		{"whitespace trimmed", "  2020  ", schemas.TypedLiteral("2020", schemas.XSDGYear)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyDate(tc.input))
		})
	}
}
