package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

// Compile converts a predicate's condition list into a WHERE fragment
// (without the WHERE keyword) and its bound parameters.
// An empty predicate compiles to "".
//
// CRITICAL: Values are NEVER interpolated - always use ? placeholders.
func Compile(p *predicates.Predicates) (string, []any, error) {
	if p == nil {
		return "", nil, rdberr.InvalidArgs("predicates", "an RdbPredicates")
	}
	if err := p.Err(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var params []any

	// needJoin is true when the next condition must be preceded by a connector.
	needJoin := false
	pendingOr := false

	connect := func() {
		if !needJoin {
			return
		}
		if pendingOr {
			sb.WriteString(" OR ")
		} else {
			sb.WriteString(" AND ")
		}
		pendingOr = false
	}

	for _, c := range p.Conditions() {
		switch c.(type) {
		case predicates.Or:
			if !needJoin {
				return "", nil, rdberr.InvalidArgs("or", "preceded by a condition")
			}
			pendingOr = true
		case predicates.BeginWrap:
			connect()
			sb.WriteString("(")
			needJoin = false
		case predicates.EndWrap:
			sb.WriteString(")")
			needJoin = true
			pendingOr = false
		default:
			frag, args, err := compileCondition(c)
			if err != nil {
				return "", nil, err
			}
			connect()
			sb.WriteString(frag)
			params = append(params, args...)
			needJoin = true
		}
	}

	if pendingOr {
		return "", nil, rdberr.InvalidArgs("or", "followed by a condition")
	}
	return sb.String(), params, nil
}

// compileCondition compiles a single comparison node.
func compileCondition(c predicates.Condition) (string, []any, error) {
	switch cond := c.(type) {
	case predicates.Compare:
		return fmt.Sprintf("%s %s ?", cond.Field, cond.Op), []any{value.Param(cond.Value)}, nil
	case predicates.Range:
		op := "BETWEEN"
		if cond.Negate {
			op = "NOT BETWEEN"
		}
		return fmt.Sprintf("%s %s ? AND ?", cond.Field, op),
			[]any{value.Param(cond.Low), value.Param(cond.High)}, nil
	case predicates.Pattern:
		return fmt.Sprintf("%s %s ?", cond.Field, cond.Op), []any{cond.Pattern}, nil
	case predicates.NullCheck:
		if cond.Not {
			return cond.Field + " IS NOT NULL", nil, nil
		}
		return cond.Field + " IS NULL", nil, nil
	case predicates.Membership:
		op := "IN"
		if cond.Negate {
			op = "NOT IN"
		}
		args := make([]any, len(cond.Values))
		for i, v := range cond.Values {
			args[i] = value.Param(v)
		}
		return fmt.Sprintf("%s %s (%s)", cond.Field, op, placeholders(len(args))), args, nil
	default:
		return "", nil, fmt.Errorf("unsupported condition type: %T", c)
	}
}

// compileTail renders GROUP BY, ORDER BY, LIMIT and OFFSET.
func compileTail(p *predicates.Predicates) string {
	var sb strings.Builder

	if groups := p.Groups(); len(groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groups, ", "))
	}

	if orders := p.Orders(); len(orders) > 0 {
		terms := make([]string, len(orders))
		for i, o := range orders {
			if o.Desc {
				terms[i] = o.Field + " DESC"
			} else {
				terms[i] = o.Field + " ASC"
			}
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	limit, hasLimit := p.Limit()
	offset, hasOffset := p.Offset()
	if hasLimit || hasOffset {
		if !hasLimit || limit < 0 {
			limit = -1
		}
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
		if hasOffset {
			sb.WriteString(" OFFSET ")
			sb.WriteString(strconv.Itoa(offset))
		}
	}

	return sb.String()
}

// BuildQuery renders a SELECT for p. An empty column list selects *.
func BuildQuery(p *predicates.Predicates, columns []string) (string, []any, error) {
	where, params, err := Compile(p)
	if err != nil {
		return "", nil, err
	}

	for _, col := range columns {
		if !predicates.ValidIdentifier(col) {
			return "", nil, rdberr.InvalidArgs("columns", "an array of column names")
		}
	}
	selectClause := "*"
	if len(columns) > 0 {
		selectClause = strings.Join(columns, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if p.IsDistinct() {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(selectClause)
	sb.WriteString(" FROM ")
	sb.WriteString(p.Table())
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	sb.WriteString(compileTail(p))

	return sb.String(), params, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
