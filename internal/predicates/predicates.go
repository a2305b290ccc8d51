package predicates

import (
	"fmt"
	"regexp"

	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name is safe to splice into SQL as a
// table or column name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// Predicates is a condition builder bound to a table.
type Predicates struct {
	table      string
	conditions []Condition
	orders     []Order
	groupBy    []string
	distinct   bool
	limit      int
	offset     int
	hasLimit   bool
	hasOffset  bool
	err        error
}

// New creates an empty predicate for table. An empty predicate matches
// every row.
func New(table string) *Predicates {
	p := &Predicates{table: table}
	if table == "" {
		p.err = rdberr.InvalidArgs("name", "not empty")
	} else if !ValidIdentifier(table) {
		p.err = rdberr.InvalidArgs("name", "a valid table name")
	}
	return p
}

// Table returns the bound table name.
func (p *Predicates) Table() string { return p.table }

// Conditions returns the accumulated condition list.
func (p *Predicates) Conditions() []Condition { return p.conditions }

// Orders returns the ORDER BY terms.
func (p *Predicates) Orders() []Order { return p.orders }

// Groups returns the GROUP BY columns.
func (p *Predicates) Groups() []string { return p.groupBy }

// IsDistinct reports whether DISTINCT was requested.
func (p *Predicates) IsDistinct() bool { return p.distinct }

// Limit returns the LIMIT value and whether one was set.
func (p *Predicates) Limit() (int, bool) { return p.limit, p.hasLimit }

// Offset returns the OFFSET value and whether one was set.
func (p *Predicates) Offset() (int, bool) { return p.offset, p.hasOffset }

// Err returns the first argument error recorded while building.
func (p *Predicates) Err() error {
	if p.err != nil {
		return p.err
	}
	depth := 0
	for _, c := range p.conditions {
		switch c.(type) {
		case BeginWrap:
			depth++
		case EndWrap:
			depth--
			if depth < 0 {
				return rdberr.InvalidArgs("endWrap", "preceded by beginWrap")
			}
		}
	}
	if depth != 0 {
		return rdberr.InvalidArgs("beginWrap", "closed by endWrap")
	}
	return nil
}

func (p *Predicates) fail(err error) *Predicates {
	if p.err == nil {
		p.err = err
	}
	return p
}

func (p *Predicates) checkField(field string) bool {
	if field == "" {
		p.fail(rdberr.InvalidArgs("field", "not empty"))
		return false
	}
	if !ValidIdentifier(field) {
		p.fail(rdberr.InvalidArgs("field", "a valid column name"))
		return false
	}
	return true
}

func (p *Predicates) toValue(field string, v any) (value.Value, bool) {
	val, err := value.Of(v)
	if err != nil {
		p.fail(rdberr.InvalidArgs("value", fmt.Sprintf("a ValueType (%s: %v)", field, err)))
		return nil, false
	}
	return val, true
}

func (p *Predicates) compare(field string, op CompareOp, v any) *Predicates {
	if !p.checkField(field) {
		return p
	}
	val, ok := p.toValue(field, v)
	if !ok {
		return p
	}
	p.conditions = append(p.conditions, Compare{Field: field, Op: op, Value: val})
	return p
}

// EqualTo adds "field = value".
func (p *Predicates) EqualTo(field string, v any) *Predicates {
	return p.compare(field, OpEqual, v)
}

// NotEqualTo adds "field <> value".
func (p *Predicates) NotEqualTo(field string, v any) *Predicates {
	return p.compare(field, OpNotEqual, v)
}

// GreaterThan adds "field > value".
func (p *Predicates) GreaterThan(field string, v any) *Predicates {
	return p.compare(field, OpGreater, v)
}

// LessThan adds "field < value".
func (p *Predicates) LessThan(field string, v any) *Predicates {
	return p.compare(field, OpLess, v)
}

// GreaterThanOrEqualTo adds "field >= value".
func (p *Predicates) GreaterThanOrEqualTo(field string, v any) *Predicates {
	return p.compare(field, OpGreaterOrEqual, v)
}

// LessThanOrEqualTo adds "field <= value".
func (p *Predicates) LessThanOrEqualTo(field string, v any) *Predicates {
	return p.compare(field, OpLessOrEqual, v)
}

func (p *Predicates) between(field string, low, high any, negate bool) *Predicates {
	if !p.checkField(field) {
		return p
	}
	lo, ok := p.toValue(field, low)
	if !ok {
		return p
	}
	hi, ok := p.toValue(field, high)
	if !ok {
		return p
	}
	p.conditions = append(p.conditions, Range{Field: field, Low: lo, High: hi, Negate: negate})
	return p
}

// Between adds "field BETWEEN low AND high".
func (p *Predicates) Between(field string, low, high any) *Predicates {
	return p.between(field, low, high, false)
}

// NotBetween adds "field NOT BETWEEN low AND high".
func (p *Predicates) NotBetween(field string, low, high any) *Predicates {
	return p.between(field, low, high, true)
}

func (p *Predicates) pattern(field string, op PatternOp, pat string) *Predicates {
	if !p.checkField(field) {
		return p
	}
	p.conditions = append(p.conditions, Pattern{Field: field, Op: op, Pattern: pat})
	return p
}

// Like adds "field LIKE pattern".
func (p *Predicates) Like(field, pattern string) *Predicates {
	return p.pattern(field, OpLike, pattern)
}

// Glob adds "field GLOB pattern".
func (p *Predicates) Glob(field, pattern string) *Predicates {
	return p.pattern(field, OpGlob, pattern)
}

// Contains matches values containing s.
func (p *Predicates) Contains(field, s string) *Predicates {
	return p.pattern(field, OpLike, "%"+s+"%")
}

// BeginsWith matches values starting with s.
func (p *Predicates) BeginsWith(field, s string) *Predicates {
	return p.pattern(field, OpLike, s+"%")
}

// EndsWith matches values ending with s.
func (p *Predicates) EndsWith(field, s string) *Predicates {
	return p.pattern(field, OpLike, "%"+s)
}

// IsNull adds "field IS NULL".
func (p *Predicates) IsNull(field string) *Predicates {
	if p.checkField(field) {
		p.conditions = append(p.conditions, NullCheck{Field: field})
	}
	return p
}

// IsNotNull adds "field IS NOT NULL".
func (p *Predicates) IsNotNull(field string) *Predicates {
	if p.checkField(field) {
		p.conditions = append(p.conditions, NullCheck{Field: field, Not: true})
	}
	return p
}

func (p *Predicates) membership(field string, vals []any, negate bool) *Predicates {
	if !p.checkField(field) {
		return p
	}
	if len(vals) == 0 {
		return p.fail(rdberr.InvalidArgs("value", "a non-empty array"))
	}
	converted := make([]value.Value, 0, len(vals))
	for _, v := range vals {
		val, ok := p.toValue(field, v)
		if !ok {
			return p
		}
		converted = append(converted, val)
	}
	p.conditions = append(p.conditions, Membership{Field: field, Values: converted, Negate: negate})
	return p
}

// In adds "field IN (values...)".
func (p *Predicates) In(field string, vals ...any) *Predicates {
	return p.membership(field, vals, false)
}

// NotIn adds "field NOT IN (values...)".
func (p *Predicates) NotIn(field string, vals ...any) *Predicates {
	return p.membership(field, vals, true)
}

// And is the default connector. It exists for readability of chains.
func (p *Predicates) And() *Predicates {
	return p
}

// Or joins the previous and next condition with OR.
func (p *Predicates) Or() *Predicates {
	p.conditions = append(p.conditions, Or{})
	return p
}

// BeginWrap opens a parenthesized group.
func (p *Predicates) BeginWrap() *Predicates {
	p.conditions = append(p.conditions, BeginWrap{})
	return p
}

// EndWrap closes the innermost group.
func (p *Predicates) EndWrap() *Predicates {
	p.conditions = append(p.conditions, EndWrap{})
	return p
}

// OrderByAsc appends an ascending ORDER BY term.
func (p *Predicates) OrderByAsc(field string) *Predicates {
	if p.checkField(field) {
		p.orders = append(p.orders, Order{Field: field})
	}
	return p
}

// OrderByDesc appends a descending ORDER BY term.
func (p *Predicates) OrderByDesc(field string) *Predicates {
	if p.checkField(field) {
		p.orders = append(p.orders, Order{Field: field, Desc: true})
	}
	return p
}

// GroupBy sets the GROUP BY columns.
func (p *Predicates) GroupBy(fields ...string) *Predicates {
	if len(fields) == 0 {
		return p.fail(rdberr.InvalidArgs("fields", "a non-empty array"))
	}
	for _, f := range fields {
		if !p.checkField(f) {
			return p
		}
	}
	p.groupBy = append(p.groupBy, fields...)
	return p
}

// Distinct requests SELECT DISTINCT.
func (p *Predicates) Distinct() *Predicates {
	p.distinct = true
	return p
}

// LimitAs sets LIMIT. A negative value means no limit.
func (p *Predicates) LimitAs(n int) *Predicates {
	p.limit, p.hasLimit = n, true
	return p
}

// OffsetAs sets OFFSET.
func (p *Predicates) OffsetAs(n int) *Predicates {
	if n < 0 {
		return p.fail(rdberr.InvalidArgs("rowOffset", "a non-negative number"))
	}
	p.offset, p.hasOffset = n, true
	return p
}
