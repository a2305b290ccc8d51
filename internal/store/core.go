package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/querysql"
	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

// runner is what the shared operations execute against: the store's
// statement-cached pool, or a transaction's dedicated connection.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// statement is SQL text plus its bound parameters, built and validated
// before any I/O.
type statement struct {
	sql  string
	args []any
}

func buildInsert(table string, row value.Row, conflict ConflictResolution) (statement, error) {
	if row == nil {
		return statement{}, rdberr.InvalidArgs("values", "a ValuesBucket")
	}
	q, args, err := querysql.BuildInsert(table, row, conflict)
	return statement{q, args}, err
}

func buildBatchInsert(table string, rows []value.Row) ([]statement, error) {
	if table == "" {
		return nil, rdberr.InvalidArgs("table", "not empty")
	}
	if rows == nil {
		return nil, rdberr.InvalidArgs("values", "an array of ValuesBucket")
	}
	stmts := make([]statement, 0, len(rows))
	for i, row := range rows {
		st, err := buildInsert(table, row, querysql.OnConflictNone)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		stmts = append(stmts, st)
	}
	return stmts, nil
}

func buildUpdate(row value.Row, p *predicates.Predicates, conflict ConflictResolution) (statement, error) {
	if row == nil {
		return statement{}, rdberr.InvalidArgs("values", "a ValuesBucket")
	}
	q, args, err := querysql.BuildUpdate(row, p, conflict)
	return statement{q, args}, err
}

func buildDelete(p *predicates.Predicates) (statement, error) {
	q, args, err := querysql.BuildDelete(p)
	return statement{q, args}, err
}

func buildQuery(p *predicates.Predicates, columns []string) (statement, error) {
	q, args, err := querysql.BuildQuery(p, columns)
	return statement{q, args}, err
}

func buildSQL(query string, args []any) (statement, error) {
	if query == "" {
		return statement{}, rdberr.InvalidArgs("sql", "not empty")
	}
	bound := make([]any, len(args))
	for i, a := range args {
		v, err := value.Of(a)
		if err != nil {
			return statement{}, rdberr.InvalidArgs("bindArgs", "an array of ValueType")
		}
		bound[i] = value.Param(v)
	}
	return statement{query, bound}, nil
}

// execInsert runs an INSERT and returns the new row id, or -1 when the
// conflict policy skipped the row.
func execInsert(ctx context.Context, r runner, st statement) (int64, error) {
	res, err := r.ExecContext(ctx, st.sql, st.args...)
	if err != nil {
		return -1, err
	}
	changes, err := res.RowsAffected()
	if err != nil {
		return -1, err
	}
	if changes == 0 {
		return -1, nil
	}
	return res.LastInsertId()
}

// execChanges runs a statement and returns the affected row count.
func execChanges(ctx context.Context, r runner, st statement) (int64, error) {
	res, err := r.ExecContext(ctx, st.sql, st.args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execBatch inserts every row and returns how many were inserted.
// The caller provides atomicity.
func execBatch(ctx context.Context, r runner, stmts []statement) (int64, error) {
	var inserted int64
	for _, st := range stmts {
		id, err := execInsert(ctx, r, st)
		if err != nil {
			return 0, err
		}
		if id >= 0 {
			inserted++
		}
	}
	return inserted, nil
}

// execClassified implements Execute: it dispatches on the statement type
// and rejects anything that must go through a dedicated API.
func execClassified(ctx context.Context, r runner, st statement) (value.Value, error) {
	switch kind := querysql.Classify(st.sql); kind {
	case querysql.StatementInsert:
		id, err := execInsert(ctx, r, st)
		if err != nil {
			return nil, err
		}
		return value.Integer(id), nil
	case querysql.StatementUpdate:
		n, err := execChanges(ctx, r, st)
		if err != nil {
			return nil, err
		}
		return value.Integer(n), nil
	case querysql.StatementDDL:
		if _, err := r.ExecContext(ctx, st.sql, st.args...); err != nil {
			return nil, err
		}
		return value.Null{}, nil
	case querysql.StatementPragma:
		return execPragma(ctx, r, st)
	default:
		return nil, rdberr.Innerf("%s statements are not supported by execute", kind)
	}
}

// execPragma returns the first column of the first row, or Null for a
// PRAGMA that yields no rows (an assignment).
func execPragma(ctx context.Context, r runner, st statement) (value.Value, error) {
	rows, err := r.QueryContext(ctx, st.sql, st.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out value.Value = value.Null{}
	if rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		if len(dest) > 0 {
			out = value.FromColumn(dest[0])
		}
	}
	return out, rows.Err()
}

// execRaw implements ExecuteSql: any statement except queries and
// transaction control. It returns the change count for INSERT, UPDATE and
// DELETE and 0 for everything else.
func execRaw(ctx context.Context, r runner, st statement) (int64, error) {
	kind := querysql.Classify(st.sql)
	switch kind {
	case querysql.StatementSelect, querysql.StatementBegin, querysql.StatementCommit, querysql.StatementRollback:
		return 0, rdberr.Innerf("%s statements are not supported by executeSql", kind)
	}
	res, err := r.ExecContext(ctx, st.sql, st.args...)
	if err != nil {
		return 0, err
	}
	if kind == querysql.StatementInsert || kind == querysql.StatementUpdate {
		return res.RowsAffected()
	}
	return 0, nil
}
