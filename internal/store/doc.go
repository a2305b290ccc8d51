// Package store provides relational stores on embedded SQLite.
//
// A Manager opens stores by name, at most one handle per file. A Store
// runs auto-commit statements, predicate queries and raw SQL, and starts
// explicit transactions. Query results are returned as materialized
// ResultSet cursors.
//
// # Callers
//
// Operations take a context that identifies the caller (see WithCaller).
// A caller may hold at most one ACTIVE Transaction per store. While it
// does, a second transaction or a store-level write from the same caller
// fails at once with a busy error. Different callers contend through
// SQLite's locks and fail with a busy error once the busy timeout elapses.
//
// # Transactions
//
//   - DEFERRED: no lock until the first statement
//   - IMMEDIATE: write lock at begin, readers proceed
//   - EXCLUSIVE: readers are blocked too (rollback journal modes)
//
// # Async
//
// Every write and query has an Async variant returning a Future. Futures
// from one Store or Transaction resolve in the order they were issued.
// Argument errors are reported by an already-failed Future.
//
// # Database Configuration
//
//   - journal_mode: configurable, DELETE by default
//   - synchronous=NORMAL
//   - busy_timeout: configurable, 2s by default
//   - foreign_keys=ON
package store
