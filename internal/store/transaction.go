package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/relstore/internal/metrics"
	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

// TransactionType is the SQLite locking mode a transaction begins with.
type TransactionType int

const (
	// Deferred takes no lock until the first read or write.
	Deferred TransactionType = iota
	// Immediate takes the write lock at once; readers continue.
	Immediate
	// Exclusive blocks other readers and writers (rollback journal modes).
	Exclusive
)

func (t TransactionType) String() string {
	switch t {
	case Deferred:
		return "DEFERRED"
	case Immediate:
		return "IMMEDIATE"
	case Exclusive:
		return "EXCLUSIVE"
	default:
		return fmt.Sprintf("TransactionType(%d)", int(t))
	}
}

// ParseTransactionType parses DEFERRED, IMMEDIATE or EXCLUSIVE.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DEFERRED":
		return Deferred, nil
	case "IMMEDIATE":
		return Immediate, nil
	case "EXCLUSIVE":
		return Exclusive, nil
	}
	return 0, rdberr.InvalidArgs("transactionType", "one of DEFERRED, IMMEDIATE, EXCLUSIVE")
}

// TransactionOptions configures CreateTransaction.
type TransactionOptions struct {
	Type TransactionType
}

// Transaction states.
const (
	StateActive     = "active"
	StateCommitted  = "committed"
	StateRolledBack = "rolled_back"
)

const (
	eventCommit   = "commit"
	eventRollback = "rollback"
)

// Transaction is an explicit transaction on a dedicated connection.
//
// Its operations see its own uncommitted writes. A Transaction moves from
// ACTIVE to COMMITTED or ROLLED_BACK exactly once; any operation after
// that fails. A failed statement does not end the transaction unless the
// store was configured with AutoRollbackOnError or SQLite itself rolled it
// back (ON CONFLICT ROLLBACK).
type Transaction struct {
	store  *Store
	conn   *sql.Conn
	kind   TransactionType
	caller string
	queue  *serialQueue
	logger *zap.Logger

	mu      sync.Mutex
	machine *fsm.FSM
	aborted bool // ended by the engine or policy rather than the caller
}

// CreateTransaction begins a transaction. It fails with a busy error when
// the calling context already holds an ACTIVE transaction on this store,
// or when the lock cannot be acquired within the busy timeout.
func (s *Store) CreateTransaction(ctx context.Context, opts TransactionOptions) (*Transaction, error) {
	if opts.Type < Deferred || opts.Type > Exclusive {
		return nil, rdberr.InvalidArgs("transactionType", "one of DEFERRED, IMMEDIATE, EXCLUSIVE")
	}
	return inOrder(s.queue, func() (*Transaction, error) { return s.createTransaction(ctx, opts.Type) })
}

// CreateTransactionAsync is the async form of CreateTransaction.
func (s *Store) CreateTransactionAsync(ctx context.Context, opts TransactionOptions) *Future[*Transaction] {
	if opts.Type < Deferred || opts.Type > Exclusive {
		return rejected[*Transaction](rdberr.InvalidArgs("transactionType", "one of DEFERRED, IMMEDIATE, EXCLUSIVE"))
	}
	return submit(s.queue, ctx, rdberr.AlreadyClosed(), func(ctx context.Context) (*Transaction, error) {
		return s.createTransaction(ctx, opts.Type)
	})
}

func (s *Store) createTransaction(ctx context.Context, kind TransactionType) (*Transaction, error) {
	started := time.Now()
	tx, err := s.beginTransaction(ctx, kind)
	observe("begin_"+strings.ToLower(kind.String()), started, err)
	return tx, err
}

func (s *Store) beginTransaction(ctx context.Context, kind TransactionType) (*Transaction, error) {
	caller := CallerID(ctx)

	// Reserve the caller's slot first so a concurrent second attempt from
	// the same caller fails fast instead of queueing on SQLite.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, rdberr.AlreadyClosed()
	}
	if _, busy := s.active[caller]; busy {
		s.mu.Unlock()
		return nil, rdberr.Busy(fmt.Errorf("caller %s already holds an active transaction", caller))
	}
	tx := &Transaction{
		store:  s,
		kind:   kind,
		caller: caller,
		queue:  newSerialQueue(),
		logger: s.logger.With(zap.String("caller", caller), zap.Stringer("mode", kind)),
	}
	s.active[caller] = tx
	s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err == nil {
		_, err = conn.ExecContext(ctx, "BEGIN "+kind.String())
		if err != nil {
			conn.Close()
		}
	}
	if err != nil {
		s.mu.Lock()
		delete(s.active, caller)
		s.mu.Unlock()
		return nil, rdberr.FromSQLite(err)
	}

	tx.conn = conn
	tx.machine = fsm.NewFSM(
		StateActive,
		fsm.Events{
			{Name: eventCommit, Src: []string{StateActive}, Dst: StateCommitted},
			{Name: eventRollback, Src: []string{StateActive}, Dst: StateRolledBack},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				tx.logger.Debug("transaction state changed", zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
	metrics.ActiveTransactions.Inc()
	tx.logger.Debug("transaction started")
	return tx, nil
}

// Type returns the transaction's locking mode.
func (t *Transaction) Type() TransactionType { return t.kind }

// State returns active, committed or rolled_back.
func (t *Transaction) State() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.Current()
}

// checkActive fails unless the transaction and its store are usable.
// Caller holds t.mu.
func (t *Transaction) checkActive() error {
	if err := t.store.checkOpen(); err != nil {
		return err
	}
	if t.machine.Current() != StateActive {
		return rdberr.Innerf("transaction already %s", strings.ReplaceAll(t.machine.Current(), "_", " "))
	}
	return nil
}

// do runs fn on the transaction's connection.
func (t *Transaction) do(ctx context.Context, op string, fn func(context.Context, runner) error) error {
	started := time.Now()
	err := t.doLocked(ctx, fn)
	observe("tx_"+op, started, err)
	return err
}

func (t *Transaction) doLocked(ctx context.Context, fn func(context.Context, runner) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkActive(); err != nil {
		return err
	}
	err := fn(ctx, t.conn)
	if err == nil {
		return nil
	}

	switch {
	case t.engineRolledBack():
		t.logger.Debug("transaction rolled back by engine", zap.Error(err))
		t.finishLocked(ctx, eventRollback, true)
	case t.store.cfg.AutoRollbackOnError:
		t.logger.Debug("rolling back after error", zap.Error(err))
		_, _ = t.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		t.finishLocked(ctx, eventRollback, true)
	}
	return rdberr.FromSQLite(err)
}

// engineRolledBack reports whether SQLite left transaction mode on its own,
// e.g. after an ON CONFLICT ROLLBACK. Caller holds t.mu.
func (t *Transaction) engineRolledBack() bool {
	autocommit := false
	_ = t.conn.Raw(func(driverConn any) error {
		if c, ok := driverConn.(*sqlite3.SQLiteConn); ok {
			autocommit = c.AutoCommit()
		}
		return nil
	})
	return autocommit
}

// finishLocked moves to a terminal state and releases the connection.
// Caller holds t.mu.
func (t *Transaction) finishLocked(ctx context.Context, event string, aborted bool) {
	if err := t.machine.Event(ctx, event); err != nil {
		t.logger.Warn("transaction state change rejected", zap.String("event", event), zap.Error(err))
	}
	t.aborted = aborted
	t.conn.Close()
	t.queue.shutdown()

	t.store.mu.Lock()
	if t.store.active[t.caller] == t {
		delete(t.store.active, t.caller)
	}
	t.store.mu.Unlock()
	metrics.ActiveTransactions.Dec()
}

// Commit makes the transaction's writes visible and ends it, after any
// async operations issued before it. A second Commit or Rollback fails.
func (t *Transaction) Commit(ctx context.Context) error {
	t.queue.barrier()
	return t.observedCommit(ctx)
}

// CommitAsync is the async form of Commit.
func (t *Transaction) CommitAsync(ctx context.Context) *Future[struct{}] {
	return t.submitEnd(ctx, t.observedCommit)
}

func (t *Transaction) observedCommit(ctx context.Context) error {
	started := time.Now()
	err := t.commit(ctx)
	observe("commit", started, err)
	return err
}

func (t *Transaction) commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkActive(); err != nil {
		return err
	}
	if _, err := t.conn.ExecContext(ctx, "COMMIT"); err != nil {
		if t.engineRolledBack() {
			t.finishLocked(ctx, eventRollback, true)
		}
		// A busy COMMIT leaves the transaction ACTIVE; the caller may retry
		// or roll back.
		return rdberr.FromSQLite(err)
	}
	t.finishLocked(ctx, eventCommit, false)
	return nil
}

// Rollback discards the transaction's writes and ends it.
//
// Rolling back a transaction that the engine or the auto-rollback policy
// already ended is a no-op, so error handlers can call it unconditionally.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.queue.barrier()
	return t.observedRollback(ctx)
}

// RollbackAsync is the async form of Rollback.
func (t *Transaction) RollbackAsync(ctx context.Context) *Future[struct{}] {
	return t.submitEnd(ctx, t.observedRollback)
}

func (t *Transaction) observedRollback(ctx context.Context) error {
	started := time.Now()
	err := t.rollback(ctx)
	observe("rollback", started, err)
	return err
}

// submitEnd queues Commit or Rollback. Once the transaction has ended its
// queue is closed, so fn runs at once and reports the final state itself.
func (t *Transaction) submitEnd(ctx context.Context, fn func(context.Context) error) *Future[struct{}] {
	call := func() (struct{}, error) { return struct{}{}, fn(ctx) }
	f := newFuture[struct{}]()
	if !t.queue.enqueue(func() { f.resolve(call()) }) {
		f.resolve(call())
	}
	return f
}

func (t *Transaction) rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.aborted && t.machine.Current() == StateRolledBack {
		t.aborted = false
		return nil
	}
	if err := t.checkActive(); err != nil {
		return err
	}
	_, err := t.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
	t.finishLocked(ctx, eventRollback, false)
	if err != nil && !t.engineRolledBackErr(err) {
		return rdberr.FromSQLite(err)
	}
	return nil
}

// engineRolledBackErr matches "cannot rollback - no transaction is active".
func (t *Transaction) engineRolledBackErr(err error) bool {
	return strings.Contains(err.Error(), "no transaction is active")
}

// abort rolls back an ACTIVE transaction on behalf of the store.
func (t *Transaction) abort(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.machine.Current() != StateActive {
		return
	}
	ctx := context.Background()
	_, _ = t.conn.ExecContext(ctx, "ROLLBACK")
	t.logger.Debug("transaction aborted", zap.String("reason", reason))
	t.finishLocked(ctx, eventRollback, true)
}

// Insert writes one row inside the transaction.
func (t *Transaction) Insert(ctx context.Context, table string, row value.Row, conflict ConflictResolution) (int64, error) {
	st, err := buildInsert(table, row, conflict)
	if err != nil {
		return -1, err
	}
	return inOrder(t.queue, func() (int64, error) { return t.insert(ctx, st) })
}

// InsertAsync is the async form of Insert.
func (t *Transaction) InsertAsync(ctx context.Context, table string, row value.Row, conflict ConflictResolution) *Future[int64] {
	st, err := buildInsert(table, row, conflict)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(t.queue, ctx, t.finishedErr(), func(ctx context.Context) (int64, error) {
		return t.insert(ctx, st)
	})
}

func (t *Transaction) insert(ctx context.Context, st statement) (int64, error) {
	id := int64(-1)
	err := t.do(ctx, "insert", func(ctx context.Context, r runner) error {
		var err error
		id, err = execInsert(ctx, r, st)
		return err
	})
	if err != nil {
		return -1, err
	}
	return id, nil
}

// BatchInsert writes rows inside the transaction and returns how many were
// inserted.
func (t *Transaction) BatchInsert(ctx context.Context, table string, rows []value.Row) (int64, error) {
	stmts, err := buildBatchInsert(table, rows)
	if err != nil {
		return -1, err
	}
	return inOrder(t.queue, func() (int64, error) { return t.batchInsert(ctx, stmts) })
}

// BatchInsertAsync is the async form of BatchInsert.
func (t *Transaction) BatchInsertAsync(ctx context.Context, table string, rows []value.Row) *Future[int64] {
	stmts, err := buildBatchInsert(table, rows)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(t.queue, ctx, t.finishedErr(), func(ctx context.Context) (int64, error) {
		return t.batchInsert(ctx, stmts)
	})
}

func (t *Transaction) batchInsert(ctx context.Context, stmts []statement) (int64, error) {
	var n int64
	err := t.do(ctx, "batch_insert", func(ctx context.Context, r runner) error {
		var err error
		n, err = execBatch(ctx, r, stmts)
		return err
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Update changes matching rows inside the transaction.
func (t *Transaction) Update(ctx context.Context, row value.Row, p *predicates.Predicates, conflict ConflictResolution) (int64, error) {
	st, err := buildUpdate(row, p, conflict)
	if err != nil {
		return 0, err
	}
	return inOrder(t.queue, func() (int64, error) { return t.changes(ctx, "update", st) })
}

// UpdateAsync is the async form of Update.
func (t *Transaction) UpdateAsync(ctx context.Context, row value.Row, p *predicates.Predicates, conflict ConflictResolution) *Future[int64] {
	st, err := buildUpdate(row, p, conflict)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(t.queue, ctx, t.finishedErr(), func(ctx context.Context) (int64, error) {
		return t.changes(ctx, "update", st)
	})
}

// Delete removes matching rows inside the transaction.
func (t *Transaction) Delete(ctx context.Context, p *predicates.Predicates) (int64, error) {
	st, err := buildDelete(p)
	if err != nil {
		return 0, err
	}
	return inOrder(t.queue, func() (int64, error) { return t.changes(ctx, "delete", st) })
}

// DeleteAsync is the async form of Delete.
func (t *Transaction) DeleteAsync(ctx context.Context, p *predicates.Predicates) *Future[int64] {
	st, err := buildDelete(p)
	if err != nil {
		return rejected[int64](err)
	}
	return submit(t.queue, ctx, t.finishedErr(), func(ctx context.Context) (int64, error) {
		return t.changes(ctx, "delete", st)
	})
}

func (t *Transaction) changes(ctx context.Context, op string, st statement) (int64, error) {
	var n int64
	err := t.do(ctx, op, func(ctx context.Context, r runner) error {
		var err error
		n, err = execChanges(ctx, r, st)
		return err
	})
	return n, err
}

// Execute is Store.Execute inside the transaction.
func (t *Transaction) Execute(ctx context.Context, sql string, args ...any) (value.Value, error) {
	st, err := buildSQL(sql, args)
	if err != nil {
		return nil, err
	}
	return inOrder(t.queue, func() (value.Value, error) { return t.execute(ctx, st) })
}

// ExecuteAsync is the async form of Execute.
func (t *Transaction) ExecuteAsync(ctx context.Context, sql string, args ...any) *Future[value.Value] {
	st, err := buildSQL(sql, args)
	if err != nil {
		return rejected[value.Value](err)
	}
	return submit(t.queue, ctx, t.finishedErr(), func(ctx context.Context) (value.Value, error) {
		return t.execute(ctx, st)
	})
}

func (t *Transaction) execute(ctx context.Context, st statement) (value.Value, error) {
	var out value.Value
	err := t.do(ctx, "execute", func(ctx context.Context, r runner) error {
		v, err := execClassified(ctx, r, st)
		out = v
		return err
	})
	return out, err
}

// Query selects inside the transaction, seeing its uncommitted writes.
func (t *Transaction) Query(ctx context.Context, p *predicates.Predicates, columns ...string) (*ResultSet, error) {
	st, err := buildQuery(p, columns)
	if err != nil {
		return nil, err
	}
	return inOrder(t.queue, func() (*ResultSet, error) { return t.query(ctx, st) })
}

// QueryAsync is the async form of Query.
func (t *Transaction) QueryAsync(ctx context.Context, p *predicates.Predicates, columns ...string) *Future[*ResultSet] {
	st, err := buildQuery(p, columns)
	if err != nil {
		return rejected[*ResultSet](err)
	}
	return submit(t.queue, ctx, t.finishedErr(), func(ctx context.Context) (*ResultSet, error) {
		return t.query(ctx, st)
	})
}

// QuerySql runs a raw SELECT inside the transaction.
func (t *Transaction) QuerySql(ctx context.Context, sql string, args ...any) (*ResultSet, error) {
	st, err := buildSQL(sql, args)
	if err != nil {
		return nil, err
	}
	return inOrder(t.queue, func() (*ResultSet, error) { return t.query(ctx, st) })
}

// QuerySqlAsync is the async form of QuerySql.
func (t *Transaction) QuerySqlAsync(ctx context.Context, sql string, args ...any) *Future[*ResultSet] {
	st, err := buildSQL(sql, args)
	if err != nil {
		return rejected[*ResultSet](err)
	}
	return submit(t.queue, ctx, t.finishedErr(), func(ctx context.Context) (*ResultSet, error) {
		return t.query(ctx, st)
	})
}

func (t *Transaction) query(ctx context.Context, st statement) (*ResultSet, error) {
	var rs *ResultSet
	err := t.do(ctx, "query", func(ctx context.Context, r runner) error {
		columns, rows, err := readAll(ctx, r, st)
		if err != nil {
			return err
		}
		rs = newResultSet(columns, rows)
		return nil
	})
	return rs, err
}

// finishedErr is what async operations submitted after the end report.
func (t *Transaction) finishedErr() error {
	if t.store.IsClosed() {
		return rdberr.AlreadyClosed()
	}
	return rdberr.Innerf("transaction already finished")
}
