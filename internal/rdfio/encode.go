package rdfio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// WriteNQuads serializes quads as N-Quads, one statement per line, in the
// order given. Statements in the default graph omit the graph term.
func WriteNQuads(w io.Writer, quads []schemas.Quad) error {
	bw := bufio.NewWriter(w)
	for _, q := range quads {
		if err := writeStatement(bw, q, true); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteNTriples serializes quads as N-Triples, discarding graph names.
func WriteNTriples(w io.Writer, quads []schemas.Quad) error {
	bw := bufio.NewWriter(w)
	for _, q := range quads {
		if err := writeStatement(bw, q, false); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeStatement(w *bufio.Writer, q schemas.Quad, withGraph bool) error {
	if _, err := fmt.Fprintf(w, "%s %s %s",
		formatTerm(q.Subject), formatTerm(q.Predicate), formatTerm(q.Object)); err != nil {
		return err
	}
	if withGraph && !q.Graph.IsZero() {
		if _, err := fmt.Fprintf(w, " %s", formatTerm(q.Graph)); err != nil {
			return err
		}
	}
	_, err := w.WriteString(" .\n")
	return err
}

// formatTerm renders one term per the N-Quads grammar.
func formatTerm(t schemas.Term) string {
	switch t.Kind {
	case schemas.KindBlank:
		return "_:" + t.Value
	case schemas.KindLiteral:
		s := `"` + escapeLiteral(t.Value) + `"`
		switch {
		case t.Language != "":
			return s + "@" + t.Language
		case t.Datatype != "":
			return s + "^^<" + t.Datatype + ">"
		default:
			return s
		}
	default:
		return "<" + t.Value + ">"
	}
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
