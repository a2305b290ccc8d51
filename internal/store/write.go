package store

import (
	"context"
	"fmt"

	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

// ExecuteSql runs a statement that returns no rows, outside any
// transaction. Queries and transaction control statements are rejected.
func (s *Store) ExecuteSql(ctx context.Context, sql string, args ...any) (int64, error) {
	st, err := buildSQL(sql, args)
	if err != nil {
		return 0, err
	}
	return inOrder(s.queue, func() (int64, error) { return s.executeSQL(ctx, st) })
}

// ExecuteSqlAsync is the async form of ExecuteSql.
func (s *Store) ExecuteSqlAsync(ctx context.Context, sql string, args ...any) *Future[int64] {
	st, err := buildSQL(sql, args)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (int64, error) {
		return s.executeSQL(ctx, st)
	})
}

func (s *Store) executeSQL(ctx context.Context, st statement) (int64, error) {
	var n int64
	err := s.write(ctx, "execute_sql", func(ctx context.Context, r runner) error {
		var err error
		n, err = execRaw(ctx, r, st)
		return err
	})
	return n, err
}

// Execute runs one INSERT, UPDATE, DELETE, DDL or PRAGMA statement and
// returns its result:
//   - INSERT: the new row id, or -1 when no row was inserted
//   - UPDATE/DELETE: the number of changed rows
//   - PRAGMA: the scalar value, or Null for an assignment
//   - DDL: Null
//
// SELECT, ATTACH, DETACH and transaction control fail with an inner error.
func (s *Store) Execute(ctx context.Context, sql string, args ...any) (value.Value, error) {
	st, err := buildSQL(sql, args)
	if err != nil {
		return nil, err
	}
	return inOrder(s.queue, func() (value.Value, error) { return s.execute(ctx, st) })
}

// ExecuteAsync is the async form of Execute.
func (s *Store) ExecuteAsync(ctx context.Context, sql string, args ...any) *Future[value.Value] {
	st, err := buildSQL(sql, args)
	if err != nil {
		return rejected[value.Value](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (value.Value, error) {
		return s.execute(ctx, st)
	})
}

func (s *Store) execute(ctx context.Context, st statement) (value.Value, error) {
	var out value.Value
	err := s.write(ctx, "execute", func(ctx context.Context, r runner) error {
		v, err := execClassified(ctx, r, st)
		out = v
		return err
	})
	return out, err
}

// Insert writes one row and returns its row id, or -1 when the conflict
// policy skipped it.
func (s *Store) Insert(ctx context.Context, table string, row value.Row, conflict ConflictResolution) (int64, error) {
	st, err := buildInsert(table, row, conflict)
	if err != nil {
		return -1, err
	}
	return inOrder(s.queue, func() (int64, error) { return s.insert(ctx, st) })
}

// InsertAsync is the async form of Insert.
func (s *Store) InsertAsync(ctx context.Context, table string, row value.Row, conflict ConflictResolution) *Future[int64] {
	st, err := buildInsert(table, row, conflict)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (int64, error) {
		return s.insert(ctx, st)
	})
}

func (s *Store) insert(ctx context.Context, st statement) (int64, error) {
	id := int64(-1)
	err := s.write(ctx, "insert", func(ctx context.Context, r runner) error {
		var err error
		id, err = execInsert(ctx, r, st)
		return err
	})
	if err != nil {
		return -1, err
	}
	return id, nil
}

// BatchInsert writes all rows atomically and returns how many were
// inserted. An empty batch returns 0.
func (s *Store) BatchInsert(ctx context.Context, table string, rows []value.Row) (int64, error) {
	stmts, err := buildBatchInsert(table, rows)
	if err != nil {
		return -1, err
	}
	return inOrder(s.queue, func() (int64, error) { return s.batchInsert(ctx, stmts) })
}

// BatchInsertAsync is the async form of BatchInsert.
func (s *Store) BatchInsertAsync(ctx context.Context, table string, rows []value.Row) *Future[int64] {
	stmts, err := buildBatchInsert(table, rows)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (int64, error) {
		return s.batchInsert(ctx, stmts)
	})
}

func (s *Store) batchInsert(ctx context.Context, stmts []statement) (int64, error) {
	if len(stmts) == 0 {
		if err := s.checkOpen(); err != nil {
			return -1, err
		}
		return 0, nil
	}

	var inserted int64
	err := s.write(ctx, "batch_insert", func(ctx context.Context, _ runner) (err error) {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
					err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
				}
			}
		}()

		inserted, err = execBatch(ctx, conn, stmts)
		if err != nil {
			return err
		}
		_, err = conn.ExecContext(ctx, "COMMIT")
		return err
	})
	if err != nil {
		return -1, err
	}
	return inserted, nil
}

// Update changes the rows matched by p and returns how many changed.
func (s *Store) Update(ctx context.Context, row value.Row, p *predicates.Predicates, conflict ConflictResolution) (int64, error) {
	st, err := buildUpdate(row, p, conflict)
	if err != nil {
		return 0, err
	}
	return inOrder(s.queue, func() (int64, error) { return s.changes(ctx, "update", st) })
}

// UpdateAsync is the async form of Update.
func (s *Store) UpdateAsync(ctx context.Context, row value.Row, p *predicates.Predicates, conflict ConflictResolution) *Future[int64] {
	st, err := buildUpdate(row, p, conflict)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (int64, error) {
		return s.changes(ctx, "update", st)
	})
}

// Delete removes the rows matched by p and returns how many were removed.
func (s *Store) Delete(ctx context.Context, p *predicates.Predicates) (int64, error) {
	st, err := buildDelete(p)
	if err != nil {
		return 0, err
	}
	return inOrder(s.queue, func() (int64, error) { return s.changes(ctx, "delete", st) })
}

// DeleteAsync is the async form of Delete.
func (s *Store) DeleteAsync(ctx context.Context, p *predicates.Predicates) *Future[int64] {
	st, err := buildDelete(p)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (int64, error) {
		return s.changes(ctx, "delete", st)
	})
}

func (s *Store) changes(ctx context.Context, op string, st statement) (int64, error) {
	var n int64
	err := s.write(ctx, op, func(ctx context.Context, r runner) error {
		var err error
		n, err = execChanges(ctx, r, st)
		return err
	})
	return n, err
}

// Query selects the rows matched by p. With no columns every column is
// returned.
func (s *Store) Query(ctx context.Context, p *predicates.Predicates, columns ...string) (*ResultSet, error) {
	st, err := buildQuery(p, columns)
	if err != nil {
		return nil, err
	}
	return inOrder(s.queue, func() (*ResultSet, error) { return s.query(ctx, st) })
}

// QueryAsync is the async form of Query.
func (s *Store) QueryAsync(ctx context.Context, p *predicates.Predicates, columns ...string) *Future[*ResultSet] {
	st, err := buildQuery(p, columns)
	if err != nil {
		return rejected[*ResultSet](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (*ResultSet, error) {
		return s.query(ctx, st)
	})
}

// QuerySql runs a raw SELECT.
func (s *Store) QuerySql(ctx context.Context, sql string, args ...any) (*ResultSet, error) {
	st, err := buildSQL(sql, args)
	if err != nil {
		return nil, err
	}
	return inOrder(s.queue, func() (*ResultSet, error) { return s.query(ctx, st) })
}

// QuerySqlAsync is the async form of QuerySql.
func (s *Store) QuerySqlAsync(ctx context.Context, sql string, args ...any) *Future[*ResultSet] {
	st, err := buildSQL(sql, args)
	if err != nil {
		return rejected[*ResultSet](err)
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (*ResultSet, error) {
		return s.query(ctx, st)
	})
}

func (s *Store) query(ctx context.Context, st statement) (*ResultSet, error) {
	var rs *ResultSet
	err := s.read(ctx, "query", func(ctx context.Context, r runner) error {
		columns, rows, err := readAll(ctx, r, st)
		if err != nil {
			return err
		}
		rs = newResultSet(columns, rows)
		return nil
	})
	return rs, err
}
