package querysql

import (
	"strings"

	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

// ConflictResolution selects the ON CONFLICT behaviour of a write.
type ConflictResolution int

const (
	OnConflictNone ConflictResolution = iota
	OnConflictRollback
	OnConflictAbort
	OnConflictFail
	OnConflictIgnore
	OnConflictReplace
)

var conflictClauses = [...]string{
	OnConflictNone:     "",
	OnConflictRollback: " OR ROLLBACK",
	OnConflictAbort:    " OR ABORT",
	OnConflictFail:     " OR FAIL",
	OnConflictIgnore:   " OR IGNORE",
	OnConflictReplace:  " OR REPLACE",
}

// Clause returns the "OR xxx" fragment placed after INSERT/UPDATE.
func (c ConflictResolution) Clause() (string, error) {
	if c < OnConflictNone || int(c) >= len(conflictClauses) {
		return "", rdberr.InvalidArgs("conflict", "a ConflictResolution")
	}
	return conflictClauses[c], nil
}

// ParseConflictResolution parses "", "none", "rollback", "abort", "fail",
// "ignore" or "replace" (case-insensitive).
func ParseConflictResolution(s string) (ConflictResolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return OnConflictNone, nil
	case "rollback":
		return OnConflictRollback, nil
	case "abort":
		return OnConflictAbort, nil
	case "fail":
		return OnConflictFail, nil
	case "ignore":
		return OnConflictIgnore, nil
	case "replace":
		return OnConflictReplace, nil
	}
	return OnConflictNone, rdberr.InvalidArgs("conflict", "one of none, rollback, abort, fail, ignore, replace")
}

// columns returns the defined columns of row in sorted order, validated.
func columns(row value.Row) ([]string, error) {
	defined := row.Defined()
	cols := defined.SortedKeys()
	for _, col := range cols {
		if !predicates.ValidIdentifier(col) {
			return nil, rdberr.InvalidArgs("values", "a ValuesBucket with valid column names")
		}
	}
	return cols, nil
}

// BuildInsert renders INSERT<conflict> INTO table(cols) VALUES(?...).
// Undefined fields are skipped. A row with no defined fields inserts
// DEFAULT VALUES.
func BuildInsert(table string, row value.Row, conflict ConflictResolution) (string, []any, error) {
	if table == "" {
		return "", nil, rdberr.InvalidArgs("table", "not empty")
	}
	if !predicates.ValidIdentifier(table) {
		return "", nil, rdberr.InvalidArgs("table", "a valid table name")
	}
	clause, err := conflict.Clause()
	if err != nil {
		return "", nil, err
	}
	cols, err := columns(row)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("INSERT")
	sb.WriteString(clause)
	sb.WriteString(" INTO ")
	sb.WriteString(table)
	if len(cols) == 0 {
		sb.WriteString(" DEFAULT VALUES")
		return sb.String(), nil, nil
	}

	params := make([]any, len(cols))
	for i, col := range cols {
		params[i] = value.Param(row[col])
	}
	sb.WriteString("(")
	sb.WriteString(strings.Join(cols, ","))
	sb.WriteString(") VALUES (")
	sb.WriteString(placeholders(len(cols)))
	sb.WriteString(")")

	return sb.String(), params, nil
}

// BuildUpdate renders UPDATE<conflict> table SET col=?... [WHERE ...].
func BuildUpdate(row value.Row, p *predicates.Predicates, conflict ConflictResolution) (string, []any, error) {
	where, whereParams, err := Compile(p)
	if err != nil {
		return "", nil, err
	}
	clause, err := conflict.Clause()
	if err != nil {
		return "", nil, err
	}
	cols, err := columns(row)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, rdberr.InvalidArgs("values", "a non-empty ValuesBucket")
	}

	sets := make([]string, len(cols))
	params := make([]any, 0, len(cols)+len(whereParams))
	for i, col := range cols {
		sets[i] = col + " = ?"
		params = append(params, value.Param(row[col]))
	}

	var sb strings.Builder
	sb.WriteString("UPDATE")
	sb.WriteString(clause)
	sb.WriteString(" ")
	sb.WriteString(p.Table())
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = append(params, whereParams...)
	}

	return sb.String(), params, nil
}

// BuildDelete renders DELETE FROM table [WHERE ...].
func BuildDelete(p *predicates.Predicates) (string, []any, error) {
	where, params, err := Compile(p)
	if err != nil {
		return "", nil, err
	}
	sql := "DELETE FROM " + p.Table()
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, params, nil
}
