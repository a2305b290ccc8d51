package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/relstore/internal/config"
	"github.com/roach88/relstore/internal/logging"
	"github.com/roach88/relstore/internal/metrics"
	"github.com/roach88/relstore/internal/querysql"
	"github.com/roach88/relstore/internal/rdberr"
)

// ConflictResolution selects what happens when a write violates a
// constraint.
type ConflictResolution = querysql.ConflictResolution

const (
	OnConflictNone     = querysql.OnConflictNone
	OnConflictRollback = querysql.OnConflictRollback
	OnConflictAbort    = querysql.OnConflictAbort
	OnConflictFail     = querysql.OnConflictFail
	OnConflictIgnore   = querysql.OnConflictIgnore
	OnConflictReplace  = querysql.OnConflictReplace
)

// maxConnections bounds the pool. Each ACTIVE transaction pins one
// connection; the rest serve store-level statements.
const maxConnections = 16

// Store is an open relational store.
//
// Store-level writes auto-commit. Writes are serialized in-process by a
// gate whose wait is bounded by the busy timeout; contention with other
// connections (transactions, other processes) is resolved by SQLite's
// locks with the same timeout.
type Store struct {
	name   string
	path   string
	cfg    config.Config
	meta   metadata
	db     *sql.DB
	stmts  *stmtCache
	queue  *serialQueue
	gate   *semaphore.Weighted
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	active  map[string]*Transaction // by caller id
	onClose func(*Store)
}

// dsn builds the go-sqlite3 connection string. Pragmas passed this way
// apply to every pooled connection, not just the first.
func dsn(path string, cfg config.Config) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10))
	params.Set("_journal_mode", cfg.JournalMode)
	params.Set("_foreign_keys", "on")
	params.Set("_synchronous", "NORMAL")
	return "file:" + path + "?" + params.Encode()
}

// openStore opens (creating if needed) the database at path.
func openStore(ctx context.Context, name, path string, cfg config.Config, meta metadata, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path, cfg))
	if err != nil {
		return nil, rdberr.Inner(fmt.Errorf("failed to open database: %w", err))
	}

	// Verify connection works and the file is a database
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, rdberr.FromSQLite(fmt.Errorf("failed to connect to database: %w", err))
	}
	if _, err := db.ExecContext(ctx, "PRAGMA schema_version"); err != nil {
		db.Close()
		return nil, rdberr.FromSQLite(fmt.Errorf("failed to read database header: %w", err))
	}

	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(4)

	stmts, err := newStmtCache(db, cfg.StatementCacheSize)
	if err != nil {
		db.Close()
		return nil, rdberr.Inner(fmt.Errorf("failed to create statement cache: %w", err))
	}

	s := &Store{
		name:   name,
		path:   path,
		cfg:    cfg,
		meta:   meta,
		db:     db,
		stmts:  stmts,
		queue:  newSerialQueue(),
		gate:   semaphore.NewWeighted(1),
		logger: logger.With(zap.String("store", logging.AnonymizePath(path))),
		active: make(map[string]*Transaction),
	}
	metrics.OpenStores.Inc()
	s.logger.Debug("store opened",
		zap.String("journal_mode", cfg.JournalMode),
		zap.Duration("busy_timeout", cfg.BusyTimeout),
		zap.Bool("encrypt", meta.Encrypt),
		zap.Stringer("security_level", meta.SecurityLevel))
	return s, nil
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Encrypted reports the store's encrypt flag.
func (s *Store) Encrypted() bool { return s.meta.Encrypt }

// SecurityLevel returns the recorded security level.
func (s *Store) SecurityLevel() SecurityLevel { return s.meta.SecurityLevel }

// CreatedAt returns when the store file was first created.
func (s *Store) CreatedAt() time.Time { return s.meta.CreatedAt }

// IsClosed reports whether Close was called.
func (s *Store) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close rolls back any ACTIVE transactions, waits for queued async
// operations and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := make([]*Transaction, 0, len(s.active))
	for _, tx := range s.active {
		pending = append(pending, tx)
	}
	s.mu.Unlock()

	for _, tx := range pending {
		tx.abort("store closed")
	}
	s.queue.close()
	s.stmts.purge()

	err := s.db.Close()
	metrics.OpenStores.Dec()
	if s.onClose != nil {
		s.onClose(s)
	}
	s.logger.Debug("store closed")
	if err != nil {
		return rdberr.Inner(fmt.Errorf("failed to close database: %w", err))
	}
	return nil
}

// checkOpen fails with an already-closed error after Close.
func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return rdberr.AlreadyClosed()
	}
	return nil
}

// checkWritable additionally rejects a write from a caller that holds an
// ACTIVE transaction on this store: it would deadlock on its own lock.
func (s *Store) checkWritable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return rdberr.AlreadyClosed()
	}
	if _, busy := s.active[CallerID(ctx)]; busy {
		return rdberr.Busy(fmt.Errorf("caller %s holds an active transaction", CallerID(ctx)))
	}
	return nil
}

// acquireGate takes the in-process write gate, waiting at most the busy
// timeout.
func (s *Store) acquireGate(ctx context.Context) error {
	waitCtx := ctx
	if s.cfg.BusyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.BusyTimeout)
		defer cancel()
	}
	if err := s.gate.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return rdberr.Inner(ctx.Err())
		}
		return rdberr.Busy(fmt.Errorf("timed out waiting for write gate: %w", err))
	}
	return nil
}

// pool returns the store-level runner.
func (s *Store) pool() runner {
	return poolRunner{db: s.db, cache: s.stmts}
}

// write runs fn as an auto-commit write.
func (s *Store) write(ctx context.Context, op string, fn func(context.Context, runner) error) error {
	started := time.Now()
	err := s.doWrite(ctx, fn)
	observe(op, started, err)
	if err != nil {
		s.logger.Debug("write failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (s *Store) doWrite(ctx context.Context, fn func(context.Context, runner) error) error {
	if err := s.checkWritable(ctx); err != nil {
		return err
	}
	if err := s.acquireGate(ctx); err != nil {
		return err
	}
	defer s.gate.Release(1)
	return rdberr.FromSQLite(fn(ctx, s.pool()))
}

// read runs fn against the pool without the write gate.
func (s *Store) read(ctx context.Context, op string, fn func(context.Context, runner) error) error {
	started := time.Now()
	err := s.checkOpen()
	if err == nil {
		err = rdberr.FromSQLite(fn(ctx, s.pool()))
	}
	observe(op, started, err)
	return err
}

func observe(op string, started time.Time, err error) {
	metrics.Observe(op, started, err)
	if rdberr.IsBusy(err) {
		metrics.BusyTotal.Inc()
	}
}

// poolRunner executes on the shared pool. Parameterized statements go
// through the prepared statement cache; argument-less statements run
// directly so multi-statement scripts keep working.
type poolRunner struct {
	db    *sql.DB
	cache *stmtCache
}

func (p poolRunner) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if p.cache == nil || len(args) == 0 {
		return p.db.ExecContext(ctx, query, args...)
	}
	cs, err := p.cache.acquire(ctx, query)
	if err != nil {
		return nil, err
	}
	defer p.cache.release(cs)
	return cs.stmt.ExecContext(ctx, args...)
}

func (p poolRunner) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if p.cache == nil || len(args) == 0 {
		return p.db.QueryContext(ctx, query, args...)
	}
	cs, err := p.cache.acquire(ctx, query)
	if err != nil {
		return nil, err
	}
	// Open rows keep the statement alive even if it is evicted meanwhile.
	defer p.cache.release(cs)
	return cs.stmt.QueryContext(ctx, args...)
}

// Version returns the schema version (PRAGMA user_version).
func (s *Store) Version(ctx context.Context) (int, error) {
	s.queue.barrier()
	var version int
	err := s.read(ctx, "version", func(ctx context.Context, r runner) error {
		rows, err := r.QueryContext(ctx, "PRAGMA user_version")
		if err != nil {
			return err
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&version); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	return version, err
}

// SetVersion sets the schema version. It must be positive.
func (s *Store) SetVersion(ctx context.Context, version int) error {
	if version <= 0 {
		return rdberr.InvalidArgs("version", "> 0")
	}
	s.queue.barrier()
	return s.write(ctx, "set_version", func(ctx context.Context, r runner) error {
		_, err := r.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	})
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var v string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&v); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if v != expected {
		return fmt.Errorf("%s = %q, expected %q", name, v, expected)
	}
	return nil
}
