package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relstore/internal/config"
	"github.com/roach88/relstore/internal/value"
)

const createTestTable = `CREATE TABLE IF NOT EXISTS test (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER,
	salary REAL,
	blobType BLOB
)`

// testConfig returns a config rooted in a fresh temp dir.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.BusyTimeout = 200 * time.Millisecond
	return cfg
}

// createTestManager creates a Manager that is closed when the test ends.
func createTestManager(t *testing.T, cfg config.Config) *Manager {
	t.Helper()
	m := NewManager(cfg)
	t.Cleanup(func() { m.Close() })
	return m
}

// createTestStore opens rdbstore.db with the test table.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return createTestStoreWith(t, testConfig(t))
}

func createTestStoreWith(t *testing.T, cfg config.Config) *Store {
	t.Helper()
	m := createTestManager(t, cfg)
	s, err := m.GetStore(context.Background(), StoreConfig{Name: "rdbstore.db"}, 1)
	require.NoError(t, err)
	mustExec(t, s, createTestTable)
	return s
}

// mustExec runs sql through ExecuteSql and fails the test on error.
func mustExec(t *testing.T, s *Store, sql string, args ...any) int64 {
	t.Helper()
	n, err := s.ExecuteSql(context.Background(), sql, args...)
	require.NoError(t, err)
	return n
}

// testRow builds a row for the test table.
func testRow(name string, age int64, salary float64, blob []byte) value.Row {
	return value.Row{
		"name":     value.Text(name),
		"age":      value.Integer(age),
		"salary":   value.Real(salary),
		"blobType": value.Blob(blob),
	}
}

// countRows returns the number of rows in the test table as seen by ctx.
func countRows(t *testing.T, ctx context.Context, s *Store) int {
	t.Helper()
	rs, err := s.QuerySql(ctx, "SELECT * FROM test")
	require.NoError(t, err)
	defer rs.Close()
	return rs.RowCount()
}
