package predicates

import "github.com/roach88/relstore/internal/value"

// Condition is one element of a predicate's condition list.
//
// This is a sealed interface - only types in this package implement it.
// Connector nodes (Or, BeginWrap, EndWrap) sit in the same list as the
// comparisons so that call order is preserved exactly.
type Condition interface {
	conditionNode()
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEqual          CompareOp = "="
	OpNotEqual       CompareOp = "<>"
	OpGreater        CompareOp = ">"
	OpLess           CompareOp = "<"
	OpGreaterOrEqual CompareOp = ">="
	OpLessOrEqual    CompareOp = "<="
)

// Compare is "field op ?".
type Compare struct {
	Field string
	Op    CompareOp
	Value value.Value
}

func (Compare) conditionNode() {}

// Range is "field [NOT] BETWEEN ? AND ?".
type Range struct {
	Field  string
	Low    value.Value
	High   value.Value
	Negate bool
}

func (Range) conditionNode() {}

// PatternOp selects the SQL pattern operator.
type PatternOp string

const (
	OpLike PatternOp = "LIKE"
	OpGlob PatternOp = "GLOB"
)

// Pattern is "field LIKE ?" or "field GLOB ?".
type Pattern struct {
	Field   string
	Op      PatternOp
	Pattern string
}

func (Pattern) conditionNode() {}

// NullCheck is "field IS [NOT] NULL".
type NullCheck struct {
	Field string
	Not   bool
}

func (NullCheck) conditionNode() {}

// Membership is "field [NOT] IN (?, ...)".
type Membership struct {
	Field  string
	Values []value.Value
	Negate bool
}

func (Membership) conditionNode() {}

// Or joins the previous and next condition with OR instead of AND.
type Or struct{}

func (Or) conditionNode() {}

// BeginWrap opens a parenthesized group.
type BeginWrap struct{}

func (BeginWrap) conditionNode() {}

// EndWrap closes the innermost parenthesized group.
type EndWrap struct{}

func (EndWrap) conditionNode() {}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}
