package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	data := []byte(`
name: minimal
description: "one insert"
config:
  busy_timeout: 50ms
setup:
  - CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)
steps:
  - op: insert
    table: t
    values: { name: a }
    expect: { value: 1 }
  - parallel:
      - op: query_sql
        sql: SELECT * FROM t
        expect: { row_count: 1 }
assertions:
  - type: trace_count
    op: insert
    count: 1
`)
	s, err := ParseScenario(data)
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Len(t, s.Setup, 1)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, OpInsert, s.Steps[0].Op)
	assert.Equal(t, "a", s.Steps[0].Values["name"])
	assert.Equal(t, 1, s.Steps[0].Expect.Value)
	require.Len(t, s.Steps[1].Parallel, 1)
	require.NotNil(t, s.Steps[1].Parallel[0].Expect.RowCount)
	assert.Equal(t, 1, *s.Steps[1].Parallel[0].Expect.RowCount)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, 1, *s.Assertions[0].Count)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\nsteps: [{op: version}]", "name is required"},
		{"missing description", "name: n\nsteps: [{op: version}]", "description is required"},
		{"no steps", "name: n\ndescription: d", "steps list is required"},
		{"unknown op", "name: n\ndescription: d\nsteps: [{op: drop}]", `unknown op "drop"`},
		{"missing op", "name: n\ndescription: d\nsteps: [{table: t}]", "op is required"},
		{"insert without values", "name: n\ndescription: d\nsteps: [{op: insert, table: t}]", "table and values are required"},
		{"query without table", "name: n\ndescription: d\nsteps: [{op: query}]", "table is required"},
		{"sql missing", "name: n\ndescription: d\nsteps: [{op: query_sql}]", "sql is required"},
		{"commit without tx", "name: n\ndescription: d\nsteps: [{op: commit}]", "tx is required"},
		{"execute_sql in tx", "name: n\ndescription: d\nsteps: [{op: execute_sql, sql: x, tx: t}]", "does not run inside a transaction"},
		{"parallel with op", "name: n\ndescription: d\nsteps: [{op: version, parallel: [{op: version}]}]", "parallel steps cannot have an op"},
		{"nested parallel", "name: n\ndescription: d\nsteps: [{parallel: [{parallel: [{op: version}]}]}]", "cannot nest"},
		{"unknown field", "name: n\ndescription: d\nsteps: [{op: version, tabel: t}]", "field tabel not found"},
		{"bad assertion", "name: n\ndescription: d\nsteps: [{op: version}]\nassertions: [{type: nope}]", "unknown assertion type"},
		{"trace_count without count", "name: n\ndescription: d\nsteps: [{op: version}]\nassertions: [{type: trace_count, op: version}]", "count must be non-negative"},
		{"final_state without checks", "name: n\ndescription: d\nsteps: [{op: version}]\nassertions: [{type: final_state, table: t}]", "expect or count is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "basic_crud.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "basic_crud", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AllTestdataParse(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = ParseScenario(data)
		assert.NoError(t, err, f)
	}
}
