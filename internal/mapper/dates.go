package mapper

import (
	"regexp"
	"strings"
	"time"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

var (
	fourDigits = regexp.MustCompile(`^\d{4}$`)
	// Plausible publication years, 1500..2100.
	yearAnywhere = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2}|2100)\b`)
	yearRange    = regexp.MustCompile(`^\s*(\d{4})\s*[-–—]\s*\d{4}\s*$`)
)

// dateLayouts are tried in order. Day-first layouts come before month-first
// ones: bibliographic sources in this domain are predominantly European.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2/1/2006",
	"January 2006",
	"2006-01",
}

// classifyDate turns a free-form date string into the best literal the text
// supports: a year range keeps only its start year; exactly four digits is a
// year; a parseable date becomes a date-typed literal (date component only);
// a year found anywhere in otherwise unparseable text is kept as a year;
// everything else falls back to a plain string literal.
func classifyDate(value string) schemas.Term {
	v := strings.TrimSpace(value)

	if m := yearRange.FindStringSubmatch(v); m != nil {
		return schemas.TypedLiteral(m[1], schemas.XSDGYear)
	}
	if fourDigits.MatchString(v) {
		return schemas.TypedLiteral(v, schemas.XSDGYear)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return schemas.TypedLiteral(t.Format("2006-01-02"), schemas.XSDDateTime)
		}
	}
	if m := yearAnywhere.FindString(v); m != "" {
		return schemas.TypedLiteral(m, schemas.XSDGYear)
	}
	return schemas.Literal(value)
}
