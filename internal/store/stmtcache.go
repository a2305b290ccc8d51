package store

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/roach88/relstore/internal/metrics"
)

// cachedStmt is a prepared statement with a reference count. An evicted
// statement is closed once its last user releases it.
type cachedStmt struct {
	stmt    *sql.Stmt
	refs    int
	evicted bool
}

// stmtCache is an LRU of prepared statements keyed by SQL text.
// A nil *stmtCache disables caching.
type stmtCache struct {
	mu    sync.Mutex
	db    *sql.DB
	cache *lru.Cache
}

func newStmtCache(db *sql.DB, size int) (*stmtCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c := &stmtCache{db: db}
	cache, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// onEvict runs with c.mu held (evictions only happen inside Add/Purge).
func (c *stmtCache) onEvict(_ interface{}, v interface{}) {
	cs := v.(*cachedStmt)
	cs.evicted = true
	if cs.refs == 0 {
		cs.stmt.Close()
	}
}

// acquire returns a prepared statement for query, preparing it on a miss.
// The caller must release it.
func (c *stmtCache) acquire(ctx context.Context, query string) (*cachedStmt, error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(query); ok {
		cs := v.(*cachedStmt)
		cs.refs++
		c.mu.Unlock()
		metrics.StatementCacheHitsTotal.Inc()
		return cs, nil
	}
	c.mu.Unlock()
	metrics.StatementCacheMissesTotal.Inc()

	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache.Get(query); ok {
		// Lost a race with another preparer.
		stmt.Close()
		cs := v.(*cachedStmt)
		cs.refs++
		return cs, nil
	}
	cs := &cachedStmt{stmt: stmt, refs: 1}
	c.cache.Add(query, cs)
	return cs, nil
}

func (c *stmtCache) release(cs *cachedStmt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs.refs--
	if cs.evicted && cs.refs == 0 {
		cs.stmt.Close()
	}
}

// purge drops every statement, e.g. after the schema changed.
func (c *stmtCache) purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

func (c *stmtCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
