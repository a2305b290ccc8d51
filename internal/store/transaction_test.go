package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

var allTransactionTypes = []TransactionType{Deferred, Immediate, Exclusive}

func TestTransaction_CommitMakesRowsVisible(t *testing.T) {
	for _, kind := range allTransactionTypes {
		t.Run(kind.String(), func(t *testing.T) {
			s := createTestStore(t)
			ctx := WithCaller(context.Background())

			tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: kind})
			require.NoError(t, err)
			assert.Equal(t, kind, tx.Type())
			assert.Equal(t, StateActive, tx.State())

			id, err := tx.Insert(ctx, "test", testRow("zhangsan", 18, 100.5, []byte{1}), OnConflictNone)
			require.NoError(t, err)
			assert.Equal(t, int64(1), id)

			n, err := tx.BatchInsert(ctx, "test", []value.Row{testRow("lisi", 20, 1, nil), testRow("wangwu", 21, 2, nil)})
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			require.NoError(t, tx.Commit(ctx))
			assert.Equal(t, StateCommitted, tx.State())

			assert.Equal(t, 3, countRows(t, WithCaller(context.Background()), s))
		})
	}
}

func TestTransaction_RollbackDiscardsRows(t *testing.T) {
	for _, kind := range allTransactionTypes {
		t.Run(kind.String(), func(t *testing.T) {
			s := createTestStore(t)
			ctx := WithCaller(context.Background())

			tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: kind})
			require.NoError(t, err)

			_, err = tx.Insert(ctx, "test", testRow("zhangsan", 18, 100.5, nil), OnConflictNone)
			require.NoError(t, err)

			require.NoError(t, tx.Rollback(ctx))
			assert.Equal(t, StateRolledBack, tx.State())

			assert.Equal(t, 0, countRows(t, WithCaller(context.Background()), s))
		})
	}
}

func TestTransaction_SeesOwnWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Immediate})
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	_, err = tx.Insert(ctx, "test", testRow("zhangsan", 18, 100.5, nil), OnConflictNone)
	require.NoError(t, err)

	rs, err := tx.Query(ctx, predicates.New("test").EqualTo("name", "zhangsan"))
	require.NoError(t, err)
	assert.Equal(t, 1, rs.RowCount())

	// Uncommitted writes are invisible to another caller.
	assert.Equal(t, 0, countRows(t, WithCaller(context.Background()), s))
}

func TestTransaction_UpdateDeleteExecute(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{})
	require.NoError(t, err)

	for _, name := range []string{"zhangsan", "lisi", "lisi"} {
		_, err := tx.Insert(ctx, "test", testRow(name, 18, 1, nil), OnConflictNone)
		require.NoError(t, err)
	}

	n, err := tx.Update(ctx, value.Row{"age": value.Integer(30)}, predicates.New("test").EqualTo("name", "zhangsan"), OnConflictNone)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tx.Delete(ctx, predicates.New("test").EqualTo("name", "lisi"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	v, err := tx.Execute(ctx, "UPDATE test SET salary = ?", 5.5)
	require.NoError(t, err)
	assert.Equal(t, value.Integer(1), v)

	_, err = tx.Execute(ctx, "COMMIT")
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(err))
	assert.Equal(t, StateActive, tx.State())

	rs, err := tx.QuerySql(ctx, "SELECT age, salary FROM test")
	require.NoError(t, err)
	rows, err := rs.GetRows(10)
	require.NoError(t, err)
	assert.Equal(t, []value.Row{{"age": value.Integer(30), "salary": value.Real(5.5)}}, rows)

	require.NoError(t, tx.Commit(ctx))
}

func TestTransaction_SameCallerBusy(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Deferred})
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "test", testRow("zhangsan", 18, 100.5, nil), OnConflictNone)
	require.NoError(t, err)

	started := time.Now()
	_, err = s.CreateTransaction(ctx, TransactionOptions{Type: Deferred})
	assert.Equal(t, rdberr.CodeBusy, rdberr.CodeOf(err))
	assert.Less(t, time.Since(started), 100*time.Millisecond, "same-caller busy must not wait")

	// Store-level writes from the same caller are refused too.
	_, err = s.Insert(ctx, "test", testRow("lisi", 18, 100.5, nil), OnConflictNone)
	assert.Equal(t, rdberr.CodeBusy, rdberr.CodeOf(err))

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, countRows(t, ctx, s))

	// The caller may start again once the first transaction ended.
	tx, err = s.CreateTransaction(ctx, TransactionOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
}

func TestTransaction_CrossCallerBusy(t *testing.T) {
	s := createTestStore(t)
	a := WithCaller(context.Background())
	b := WithCaller(context.Background())

	tx, err := s.CreateTransaction(a, TransactionOptions{Type: Immediate})
	require.NoError(t, err)
	defer tx.Rollback(a)

	_, err = s.CreateTransaction(b, TransactionOptions{Type: Immediate})
	assert.Equal(t, rdberr.CodeBusy, rdberr.CodeOf(err))

	_, err = s.Insert(b, "test", testRow("lisi", 18, 100.5, nil), OnConflictNone)
	assert.Equal(t, rdberr.CodeBusy, rdberr.CodeOf(err))

	// IMMEDIATE still lets readers through.
	assert.Equal(t, 0, countRows(t, b, s))

	// Deferred takes no lock until it writes.
	other, err := s.CreateTransaction(b, TransactionOptions{Type: Deferred})
	require.NoError(t, err)
	_, err = other.Insert(b, "test", testRow("lisi", 18, 100.5, nil), OnConflictNone)
	assert.Equal(t, rdberr.CodeBusy, rdberr.CodeOf(err))
	assert.Equal(t, StateActive, other.State())
	require.NoError(t, other.Rollback(b))
}

func TestTransaction_ExclusiveBlocksReaders(t *testing.T) {
	s := createTestStore(t)
	a := WithCaller(context.Background())
	b := WithCaller(context.Background())

	tx, err := s.CreateTransaction(a, TransactionOptions{Type: Exclusive})
	require.NoError(t, err)

	_, err = s.QuerySql(b, "SELECT * FROM test")
	assert.Equal(t, rdberr.CodeBusy, rdberr.CodeOf(err))

	require.NoError(t, tx.Commit(a))
	assert.Equal(t, 0, countRows(t, b, s))
}

func TestTransaction_FinishedOperationsFail(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	_, err = tx.Insert(ctx, "test", testRow("a", 1, 1, nil), OnConflictNone)
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(err))
	_, err = tx.Query(ctx, predicates.New("test"))
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(err))
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(tx.Commit(ctx)))
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(tx.Rollback(ctx)))

	_, err = tx.InsertAsync(ctx, "test", testRow("a", 1, 1, nil), OnConflictNone).Get()
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(err))
}

func TestTransaction_ConstraintKeepsActive(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Immediate})
	require.NoError(t, err)

	row := testRow("zhangsan", 18, 100.5, nil)
	row["id"] = value.Integer(1)
	_, err = tx.Insert(ctx, "test", row, OnConflictNone)
	require.NoError(t, err)

	_, err = tx.Insert(ctx, "test", row, OnConflictNone)
	require.Error(t, err)
	assert.True(t, rdberr.IsConstraint(err))
	assert.Equal(t, StateActive, tx.State())

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, countRows(t, ctx, s))
}

func TestTransaction_AutoRollbackOnError(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutoRollbackOnError = true
	s := createTestStoreWith(t, cfg)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Immediate})
	require.NoError(t, err)

	row := testRow("zhangsan", 18, 100.5, nil)
	row["id"] = value.Integer(1)
	_, err = tx.Insert(ctx, "test", row, OnConflictNone)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "test", row, OnConflictNone)
	require.Error(t, err)

	assert.Equal(t, StateRolledBack, tx.State())
	assert.NoError(t, tx.Rollback(ctx), "rollback after automatic rollback")
	assert.Equal(t, 0, countRows(t, ctx, s))

	// The caller's slot was released.
	_, err = s.Insert(ctx, "test", row, OnConflictNone)
	assert.NoError(t, err)
}

func TestTransaction_ConflictRollbackEndsTransaction(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{})
	require.NoError(t, err)

	row := testRow("zhangsan", 18, 100.5, nil)
	row["id"] = value.Integer(1)
	_, err = tx.Insert(ctx, "test", row, OnConflictNone)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "test", row, OnConflictRollback)
	require.Error(t, err)

	assert.Equal(t, StateRolledBack, tx.State())
	assert.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, countRows(t, ctx, s))
}

func TestTransaction_StoreCloseRollsBack(t *testing.T) {
	cfg := testConfig(t)
	m := createTestManager(t, cfg)
	ctx := WithCaller(context.Background())

	s, err := m.GetStore(ctx, StoreConfig{Name: "rdbstore.db"}, 1)
	require.NoError(t, err)
	mustExec(t, s, createTestTable)

	tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Exclusive})
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "test", testRow("zhangsan", 18, 100.5, nil), OnConflictNone)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Equal(t, StateRolledBack, tx.State())

	_, err = tx.Insert(ctx, "test", testRow("lisi", 18, 100.5, nil), OnConflictNone)
	assert.Equal(t, rdberr.CodeAlreadyClosed, rdberr.CodeOf(err))

	s, err = m.GetStore(ctx, StoreConfig{Name: "rdbstore.db"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, ctx, s))
}

func TestTransaction_Async(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Immediate})
	require.NoError(t, err)

	var futures []*Future[int64]
	for _, name := range []string{"a", "b", "c"} {
		futures = append(futures, tx.InsertAsync(ctx, "test", testRow(name, 1, 1, nil), OnConflictNone))
	}
	upd := tx.UpdateAsync(ctx, value.Row{"age": value.Integer(2)}, predicates.New("test"), OnConflictNone)
	del := tx.DeleteAsync(ctx, predicates.New("test").EqualTo("name", "b"))
	batch := tx.BatchInsertAsync(ctx, "test", []value.Row{testRow("d", 1, 1, nil)})
	exec := tx.ExecuteAsync(ctx, "DELETE FROM test WHERE name = ?", "d")
	q := tx.QueryAsync(ctx, predicates.New("test").OrderByAsc("id"), "name")
	qs := tx.QuerySqlAsync(ctx, "SELECT COUNT(*) FROM test")

	for i, f := range futures {
		id, err := f.Get()
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}
	n, err := upd.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = del.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = batch.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	v, err := exec.Get()
	require.NoError(t, err)
	assert.Equal(t, value.Integer(1), v)

	rs, err := q.Get()
	require.NoError(t, err)
	rows, err := rs.GetRows(10)
	require.NoError(t, err)
	assert.Equal(t, []value.Row{{"name": value.Text("a")}, {"name": value.Text("c")}}, rows)

	rs, err = qs.Get()
	require.NoError(t, err)
	_, err = rs.GoToFirstRow()
	require.NoError(t, err)
	count, err := rs.GetLong(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, tx.Commit(ctx))

	_, err = tx.InsertAsync(ctx, "test", testRow("e", 1, 1, nil), OnConflictNone).Get()
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(err))
}

func TestTransaction_CommitWaitsForQueuedWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	for i := 0; i < 20; i++ {
		tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Immediate})
		require.NoError(t, err)
		f := tx.InsertAsync(ctx, "test", testRow("zhangsan", int64(i), 1, nil), OnConflictNone)
		require.NoError(t, tx.Commit(ctx))

		_, err = f.Get()
		require.NoError(t, err, "iteration %d", i)
		assert.Equal(t, i+1, countRows(t, ctx, s))
	}
}

func TestTransaction_RollbackWaitsForQueuedWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransaction(ctx, TransactionOptions{Type: Deferred})
	require.NoError(t, err)
	f := tx.InsertAsync(ctx, "test", testRow("zhangsan", 18, 1, nil), OnConflictNone)
	require.NoError(t, tx.Rollback(ctx))

	_, err = f.Get()
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, ctx, s))
}

func TestTransaction_AsyncLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := WithCaller(context.Background())

	tx, err := s.CreateTransactionAsync(ctx, TransactionOptions{Type: Exclusive}).Get()
	require.NoError(t, err)
	assert.Equal(t, Exclusive, tx.Type())

	ins := tx.InsertAsync(ctx, "test", testRow("zhangsan", 18, 1, nil), OnConflictNone)
	commit := tx.CommitAsync(ctx)
	late := tx.InsertAsync(ctx, "test", testRow("lisi", 18, 1, nil), OnConflictNone)

	_, err = ins.Get()
	require.NoError(t, err)
	require.NoError(t, commit.Err())
	_, err = late.Get()
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(err))
	assert.Equal(t, StateCommitted, tx.State())
	assert.Equal(t, 1, countRows(t, ctx, s))

	err = tx.RollbackAsync(ctx).Err()
	assert.Equal(t, rdberr.CodeInnerError, rdberr.CodeOf(err))

	tx, err = s.CreateTransactionAsync(ctx, TransactionOptions{Type: Immediate}).Get()
	require.NoError(t, err)
	tx.InsertAsync(ctx, "test", testRow("wangwu", 18, 1, nil), OnConflictNone)
	require.NoError(t, tx.RollbackAsync(ctx).Err())
	assert.Equal(t, StateRolledBack, tx.State())
	assert.Equal(t, 1, countRows(t, ctx, s))

	err = s.CreateTransactionAsync(ctx, TransactionOptions{Type: TransactionType(7)}).Err()
	assert.Equal(t, rdberr.CodeInvalidArgs, rdberr.CodeOf(err))
}

func TestStore_SyncCallsFollowQueuedAsync(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s.InsertAsync(ctx, "test", testRow("zhangsan", int64(i), 1, nil), OnConflictNone)
		s.InsertAsync(ctx, "test", testRow("lisi", int64(i), 1, nil), OnConflictNone)
		n, err := s.Delete(ctx, predicates.New("test"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n, "iteration %d", i)
	}

	s.ExecuteSqlAsync(ctx, "INSERT INTO test(name) VALUES ('zhaoliu')")
	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, countRows(t, ctx, s))
}

func TestCreateTransaction_InvalidType(t *testing.T) {
	s := createTestStore(t)

	_, err := s.CreateTransaction(context.Background(), TransactionOptions{Type: TransactionType(7)})
	assert.Equal(t, rdberr.CodeInvalidArgs, rdberr.CodeOf(err))
}

func TestParseTransactionType(t *testing.T) {
	tests := []struct {
		in   string
		want TransactionType
	}{
		{"", Deferred},
		{"deferred", Deferred},
		{"IMMEDIATE", Immediate},
		{" exclusive ", Exclusive},
	}
	for _, tt := range tests {
		got, err := ParseTransactionType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseTransactionType("SERIALIZABLE")
	assert.Equal(t, rdberr.CodeInvalidArgs, rdberr.CodeOf(err))
}
