package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/store"
	"github.com/roach88/relstore/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, describeEvent(event))
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func describeEvent(e TraceEvent) string {
	parts := []string{e.Op}
	if e.Caller != "" {
		parts = append(parts, "caller="+e.Caller)
	}
	if e.Tx != "" {
		parts = append(parts, "tx="+e.Tx)
	}
	if e.Table != "" {
		parts = append(parts, "table="+e.Table)
	}
	if e.Error != 0 {
		parts = append(parts, fmt.Sprintf("error=%d", e.Error))
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that a successful step with the given op
// (and table, when set) was traced.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Op != assertion.Op || event.Error != 0 {
			continue
		}
		if assertion.Table == "" || event.Table == assertion.Table {
			return nil
		}
	}

	expected := "successful " + assertion.Op
	if assertion.Table != "" {
		expected += " on " + assertion.Table
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops first appear in the given order.
// Intervening steps are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i + 1
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev, curr := assertion.Ops[i-1], assertion.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that op was traced exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}

	if count != *assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState queries the table through the predicate builder and
// checks the row count and, with Expect, the values of the single
// matching row (subset match).
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	p, err := wherePredicates(assertion.Table, assertion.Where, nil)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	rows, err := drain(st.Query(store.WithCallerID(ctx, "harness"), p))
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	if assertion.Count != nil && len(rows) != *assertion.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows in %s where %s", *assertion.Count, assertion.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	if len(assertion.Expect) == 0 {
		return nil
	}

	switch {
	case len(rows) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case len(rows) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actual := rows[0]
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("columns: %v", actual.SortedKeys()),
			}
		}
		want, err := toValue(assertion.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state: expect %q: %w", key, err)
		}
		if !valuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %s", key, formatValue(want)),
				Actual:   fmt.Sprintf("field %q = %s", key, formatValue(got)),
			}
		}
	}
	return nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// valuesEqual compares two values by their canonical encoding. Expected
// values must be written the way SQLite returns them: a bool reads back
// as an integer.
func valuesEqual(a, b any) bool {
	ab, errA := value.MarshalCanonical(a)
	bb, errB := value.MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func formatValue(v any) string {
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// checkExpect compares a step outcome against its expect clause and
// returns a description of the first mismatch.
func checkExpect(exp *Expect, res any, err error) string {
	if exp == nil || exp.ErrorCode == 0 {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
	}
	if exp == nil {
		return ""
	}

	if exp.ErrorCode != 0 {
		if err == nil {
			return fmt.Sprintf("expected error %d, got success", exp.ErrorCode)
		}
		if code := rdberr.CodeOf(err); int(code) != exp.ErrorCode {
			return fmt.Sprintf("expected error %d, got %d: %v", exp.ErrorCode, code, err)
		}
		return ""
	}

	if exp.RowCount != nil || exp.Rows != nil {
		rows, ok := res.([]value.Row)
		if !ok {
			return fmt.Sprintf("expected rows, got %T", res)
		}
		if exp.RowCount != nil && len(rows) != *exp.RowCount {
			return fmt.Sprintf("expected %d rows, got %d", *exp.RowCount, len(rows))
		}
		if exp.Rows != nil {
			want := make([]value.Row, len(exp.Rows))
			for i, r := range exp.Rows {
				row, convErr := toRow(r)
				if convErr != nil {
					return fmt.Sprintf("expect rows[%d]: %v", i, convErr)
				}
				want[i] = row
			}
			if !valuesEqual(want, rows) {
				return fmt.Sprintf("expected rows %s, got %s", formatValue(want), formatValue(rows))
			}
		}
	}

	if exp.Value != nil {
		want, convErr := toValue(exp.Value)
		if convErr != nil {
			return fmt.Sprintf("expect value: %v", convErr)
		}
		got := traceResult(res)
		if !valuesEqual(want, got) {
			return fmt.Sprintf("expected value %s, got %s", formatValue(want), formatValue(got))
		}
	}
	return ""
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires store context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
