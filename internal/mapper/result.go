package mapper

import "github.com/ch-sander/zotero-rdf-server/api/schemas"

// ResultKind classifies the outcome of one transform rule.
type ResultKind int

const (
	// None: the rule matched but no statement is emitted for this field.
	None ResultKind = iota
	// LiteralResult: emit one triple with a literal object.
	LiteralResult
	// NodeResult: emit one triple with a named-node object.
	NodeResult
	// Handled: the rule already wrote its statements itself (tags,
	// creators, entity fields); the walker emits nothing further.
	Handled
)

// Result is the explicit outcome of a transform rule. Skips and
// side-effecting rules are ordinary values, not control flow.
type Result struct {
	Kind ResultKind
	Term schemas.Term
}

func noResult() Result                { return Result{Kind: None} }
func literalOf(t schemas.Term) Result { return Result{Kind: LiteralResult, Term: t} }
func nodeOf(t schemas.Term) Result    { return Result{Kind: NodeResult, Term: t} }
func handled() Result                 { return Result{Kind: Handled} }
