package harness

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/relstore/internal/config"
	"github.com/roach88/relstore/internal/logging"
	"github.com/roach88/relstore/internal/predicates"
	"github.com/roach88/relstore/internal/querysql"
	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/store"
	"github.com/roach88/relstore/internal/testutil"
	"github.com/roach88/relstore/internal/value"
)

// storeName is the database file each scenario runs against.
const storeName = "harness.db"

// harnessFailure is the trace error code of a step that failed before
// reaching the store (unknown transaction, bad value).
const harnessFailure = -1

// Harness executes one scenario against a fresh store.
type Harness struct {
	store   *store.Store
	clock   *testutil.DeterministicClock
	callers *testutil.SequenceIDGenerator
	logger  *zap.Logger

	mu  sync.Mutex
	txs map[string]*namedTx
}

type namedTx struct {
	tx     *store.Transaction
	caller string
}

// target is the operation surface shared by Store and Transaction.
type target interface {
	Insert(ctx context.Context, table string, row value.Row, conflict store.ConflictResolution) (int64, error)
	InsertAsync(ctx context.Context, table string, row value.Row, conflict store.ConflictResolution) *store.Future[int64]
	BatchInsert(ctx context.Context, table string, rows []value.Row) (int64, error)
	BatchInsertAsync(ctx context.Context, table string, rows []value.Row) *store.Future[int64]
	Update(ctx context.Context, row value.Row, p *predicates.Predicates, conflict store.ConflictResolution) (int64, error)
	UpdateAsync(ctx context.Context, row value.Row, p *predicates.Predicates, conflict store.ConflictResolution) *store.Future[int64]
	Delete(ctx context.Context, p *predicates.Predicates) (int64, error)
	DeleteAsync(ctx context.Context, p *predicates.Predicates) *store.Future[int64]
	Execute(ctx context.Context, sql string, args ...any) (value.Value, error)
	ExecuteAsync(ctx context.Context, sql string, args ...any) *store.Future[value.Value]
	Query(ctx context.Context, p *predicates.Predicates, columns ...string) (*store.ResultSet, error)
	QueryAsync(ctx context.Context, p *predicates.Predicates, columns ...string) *store.Future[*store.ResultSet]
	QuerySql(ctx context.Context, sql string, args ...any) (*store.ResultSet, error)
	QuerySqlAsync(ctx context.Context, sql string, args ...any) *store.Future[*store.ResultSet]
}

var (
	_ target = (*store.Store)(nil)
	_ target = (*store.Transaction)(nil)
)

// RunOption configures Run.
type RunOption func(*runOptions)

type runOptions struct {
	logger *zap.Logger
}

// WithLogger routes store and harness logs to logger. Logs are discarded
// by default.
func WithLogger(logger *zap.Logger) RunOption {
	return func(o *runOptions) {
		o.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary directory. An error is returned
// only when the scenario could not be executed at all (bad config, failing
// setup); failed expectations are reported through Result.
func Run(ctx context.Context, scenario *Scenario, opts ...RunOption) (*Result, error) {
	o := runOptions{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := scenarioConfig(scenario)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "relstore-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)
	cfg.Dir = dir

	// Metadata timestamps get their own clock so trace sequence numbers
	// start at 1.
	metaClock := testutil.NewDeterministicClock()
	mgr := store.NewManager(cfg, store.WithLogger(o.logger), store.WithClock(metaClock.Now))
	defer mgr.Close()

	st, err := mgr.GetStore(ctx, store.StoreConfig{Name: storeName}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	h := &Harness{
		store:   st,
		clock:   testutil.NewDeterministicClock(),
		callers: testutil.NewSequenceIDGenerator("caller"),
		logger:  o.logger.With(zap.String("scenario", scenario.Name)),
		txs:     make(map[string]*namedTx),
	}
	defer h.rollbackOpen(ctx)

	for i, sql := range scenario.Setup {
		if _, err := st.ExecuteSql(ctx, sql); err != nil {
			return nil, fmt.Errorf("setup[%d] failed: %w", i, err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if len(step.Parallel) > 0 {
			h.executeParallel(ctx, i, step.Parallel, result)
			continue
		}
		event, msg := h.executeStep(ctx, step)
		event.Seq = h.clock.Next()
		result.Trace = append(result.Trace, event)
		if msg != "" {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, &AssertionContext{Store: st, Ctx: ctx}) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		zap.Bool("pass", result.Pass),
		zap.Int("steps", len(result.Trace)),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// scenarioConfig runs the scenario's config overrides through the regular
// config parser so they get the same defaults and schema checks.
func scenarioConfig(scenario *Scenario) (config.Config, error) {
	if scenario.Config.Kind == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(&scenario.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to encode scenario config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return config.Config{}, fmt.Errorf("scenario config: %w", err)
	}
	return cfg, nil
}

// executeParallel runs a group concurrently. Steps without a caller each
// get a generated one, assigned in declaration order.
func (h *Harness) executeParallel(ctx context.Context, index int, steps []Step, result *Result) {
	steps = append([]Step(nil), steps...)
	for i := range steps {
		if steps[i].Caller == "" && steps[i].Tx == "" {
			steps[i].Caller = h.callers.Generate()
		}
	}

	events := make([]TraceEvent, len(steps))
	msgs := make([]string, len(steps))
	var g errgroup.Group
	for i, step := range steps {
		i, step := i, step
		g.Go(func() error {
			events[i], msgs[i] = h.executeStep(ctx, step)
			return nil
		})
	}
	_ = g.Wait()

	for i := range steps {
		events[i].Seq = h.clock.Next()
		result.Trace = append(result.Trace, events[i])
		if msgs[i] != "" {
			result.AddError(fmt.Sprintf("steps[%d].parallel[%d] (%s): %s", index, i, steps[i].Op, msgs[i]))
		}
	}
}

// executeStep runs one step and checks its expectation. The returned
// message is empty when the step behaved as expected.
func (h *Harness) executeStep(ctx context.Context, step Step) (TraceEvent, string) {
	event := TraceEvent{Op: step.Op, Tx: step.Tx, Table: step.Table, Caller: step.Caller}

	var entry *namedTx
	if step.Tx != "" && step.Op != OpBegin {
		h.mu.Lock()
		entry = h.txs[step.Tx]
		h.mu.Unlock()
		if entry == nil {
			event.Error = harnessFailure
			return event, fmt.Sprintf("unknown transaction %q", step.Tx)
		}
		if event.Caller == "" {
			event.Caller = entry.caller
		}
	}
	if event.Caller != "" {
		ctx = store.WithCallerID(ctx, event.Caller)
	}

	res, err := h.dispatch(ctx, step, entry)
	if err != nil {
		event.Error = int(rdberr.CodeOf(err))
		if event.Error == 0 {
			event.Error = harnessFailure
		}
		h.logger.Debug("step failed", zap.String("op", step.Op), zap.Error(err))
	} else {
		event.Result = traceResult(res)
	}
	return event, checkExpect(step.Expect, res, err)
}

func (h *Harness) dispatch(ctx context.Context, step Step, entry *namedTx) (any, error) {
	var t target = h.store
	if entry != nil {
		t = entry.tx
	}

	switch step.Op {
	case OpBegin:
		return h.begin(ctx, step)
	case OpCommit:
		err := entry.tx.Commit(ctx)
		h.forgetFinished(step.Tx, entry)
		return nil, err
	case OpRollback:
		err := entry.tx.Rollback(ctx)
		h.forgetFinished(step.Tx, entry)
		return nil, err
	case OpVersion:
		v, err := h.store.Version(ctx)
		return int64(v), err
	case OpSetVersion:
		return nil, h.store.SetVersion(ctx, step.Version)
	case OpExecuteSQL:
		args, err := toValues(step.Args)
		if err != nil {
			return nil, err
		}
		if step.Async {
			return h.store.ExecuteSqlAsync(ctx, step.SQL, args...).Get()
		}
		return h.store.ExecuteSql(ctx, step.SQL, args...)
	}
	return h.dispatchData(ctx, t, step)
}

// dispatchData runs the operations available on both stores and
// transactions.
func (h *Harness) dispatchData(ctx context.Context, t target, step Step) (any, error) {
	conflict, err := querysql.ParseConflictResolution(step.Conflict)
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case OpExecute:
		args, err := toValues(step.Args)
		if err != nil {
			return nil, err
		}
		if step.Async {
			return t.ExecuteAsync(ctx, step.SQL, args...).Get()
		}
		return t.Execute(ctx, step.SQL, args...)

	case OpInsert:
		row, err := toRow(step.Values)
		if err != nil {
			return nil, err
		}
		if step.Async {
			return t.InsertAsync(ctx, step.Table, row, conflict).Get()
		}
		return t.Insert(ctx, step.Table, row, conflict)

	case OpBatchInsert:
		rows := make([]value.Row, len(step.Rows))
		for i, r := range step.Rows {
			if rows[i], err = toRow(r); err != nil {
				return nil, fmt.Errorf("rows[%d]: %w", i, err)
			}
		}
		if step.Async {
			return t.BatchInsertAsync(ctx, step.Table, rows).Get()
		}
		return t.BatchInsert(ctx, step.Table, rows)

	case OpUpdate:
		row, err := toRow(step.Values)
		if err != nil {
			return nil, err
		}
		p, err := wherePredicates(step.Table, step.Where, nil)
		if err != nil {
			return nil, err
		}
		if step.Async {
			return t.UpdateAsync(ctx, row, p, conflict).Get()
		}
		return t.Update(ctx, row, p, conflict)

	case OpDelete:
		p, err := wherePredicates(step.Table, step.Where, nil)
		if err != nil {
			return nil, err
		}
		if step.Async {
			return t.DeleteAsync(ctx, p).Get()
		}
		return t.Delete(ctx, p)

	case OpQuery:
		p, err := wherePredicates(step.Table, step.Where, step.OrderBy)
		if err != nil {
			return nil, err
		}
		var rs *store.ResultSet
		if step.Async {
			rs, err = t.QueryAsync(ctx, p, step.Columns...).Get()
		} else {
			rs, err = t.Query(ctx, p, step.Columns...)
		}
		return drain(rs, err)

	case OpQuerySQL:
		args, err := toValues(step.Args)
		if err != nil {
			return nil, err
		}
		var rs *store.ResultSet
		if step.Async {
			rs, err = t.QuerySqlAsync(ctx, step.SQL, args...).Get()
		} else {
			rs, err = t.QuerySql(ctx, step.SQL, args...)
		}
		return drain(rs, err)
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) begin(ctx context.Context, step Step) (any, error) {
	kind, err := store.ParseTransactionType(step.Mode)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	_, exists := h.txs[step.Tx]
	h.mu.Unlock()
	if exists {
		return nil, fmt.Errorf("transaction %q already begun", step.Tx)
	}

	tx, err := h.store.CreateTransaction(ctx, store.TransactionOptions{Type: kind})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.txs[step.Tx] = &namedTx{tx: tx, caller: step.Caller}
	h.mu.Unlock()
	return kind.String(), nil
}

// forgetFinished drops a transaction once it left the active state. A
// commit that failed as busy keeps it so the scenario can retry.
func (h *Harness) forgetFinished(name string, entry *namedTx) {
	if entry.tx.State() == store.StateActive {
		return
	}
	h.mu.Lock()
	delete(h.txs, name)
	h.mu.Unlock()
}

// rollbackOpen rolls back transactions a scenario left open so the store
// can close cleanly.
func (h *Harness) rollbackOpen(ctx context.Context) {
	h.mu.Lock()
	names := make([]string, 0, len(h.txs))
	for name := range h.txs {
		names = append(names, name)
	}
	sort.Strings(names)
	open := make([]*namedTx, len(names))
	for i, name := range names {
		open[i] = h.txs[name]
	}
	h.mu.Unlock()

	for i, entry := range open {
		if err := entry.tx.Rollback(ctx); err != nil {
			h.logger.Warn("rollback of open transaction failed", zap.String("tx", names[i]), zap.Error(err))
		}
	}
}

// drain reads a whole result set and closes it.
func drain(rs *store.ResultSet, err error) ([]value.Row, error) {
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	n := rs.RowCount()
	if n <= 0 {
		return []value.Row{}, nil
	}
	return rs.GetRows(n, 0)
}

// wherePredicates builds an equality filter from a where map. Keys are
// sorted so the generated SQL is stable. An order_by entry prefixed with
// "-" sorts descending.
func wherePredicates(table string, where map[string]any, orderBy []string) (*predicates.Predicates, error) {
	p := predicates.New(table)
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := toValue(where[k])
		if err != nil {
			return nil, fmt.Errorf("where %q: %w", k, err)
		}
		if value.IsNull(v) {
			p.IsNull(k)
		} else {
			p.EqualTo(k, v)
		}
	}
	for _, col := range orderBy {
		if len(col) > 1 && col[0] == '-' {
			p.OrderByDesc(col[1:])
		} else {
			p.OrderByAsc(col)
		}
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// toValue converts a decoded YAML scalar or list into a store value.
// A list of integers in 0..255 is a blob.
func toValue(v any) (value.Value, error) {
	list, ok := v.([]any)
	if !ok {
		return value.Of(v)
	}
	blob := make(value.Blob, len(list))
	for i, elem := range list {
		n, ok := elem.(int)
		if !ok || n < 0 || n > 255 {
			return nil, fmt.Errorf("blob element %d: want a byte, got %v", i, elem)
		}
		blob[i] = byte(n)
	}
	return blob, nil
}

func toRow(m map[string]any) (value.Row, error) {
	row := make(value.Row, len(m))
	for k, v := range m {
		val, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		row[k] = val
	}
	return row, nil
}

func toValues(list []any) ([]any, error) {
	out := make([]any, len(list))
	for i, v := range list {
		val, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}

// traceResult converts an operation result into a value the canonical
// encoder accepts. Absent results are nil and left out of the trace.
func traceResult(res any) any {
	switch r := res.(type) {
	case nil:
		return nil
	case int64:
		return value.Integer(r)
	case value.Value:
		if value.IsNull(r) {
			return nil
		}
		return r
	case []value.Row:
		if r == nil {
			return nil
		}
		return r
	default:
		return r
	}
}
