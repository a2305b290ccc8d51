package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: insert_one
description: "insert and count"
setup:
  - CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)
steps:
  - op: insert
    table: test
    values: { name: zhangsan }
    expect: { value: 1 }
  - op: query_sql
    sql: SELECT COUNT(*) AS n FROM test
    expect:
      rows:
        - { n: 1 }
`

const failingScenario = `name: wrong_count
description: "expectation that does not hold"
setup:
  - CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)
steps:
  - op: query_sql
    sql: SELECT COUNT(*) AS n FROM test
    expect:
      rows:
        - { n: 5 }
`

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "insert_one.yaml", passingScenario)

	out, _, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ insert_one")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, _, err = execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "insert_one.golden"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"insert_one","trace":[{"op":"insert","result":1,"seq":1,"table":"test"},{"op":"query_sql","result":[{"n":1}],"seq":2}]}`,
		string(golden))

	_, _, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "insert_one.golden"), []byte("{}"), 0o644))
	out, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailureJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "insert_one.yaml", passingScenario)
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)
	writeScenario(t, dir, "notes.txt", "ignored")

	out, _, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "insert_one.yaml", passingScenario)
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)

	out, _, err := execute(t, "test", dir, "--filter", "insert_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, _, err = execute(t, "test", dir, "--filter", "nothing_*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, _, err = execute(t, "test", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\nsteps: []\n")

	out, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_GoldenDirFlag(t *testing.T) {
	dir := t.TempDir()
	goldenDir := t.TempDir()
	writeScenario(t, dir, "insert_one.yaml", passingScenario)

	_, _, err := execute(t, "test", dir, "--update", "--golden", goldenDir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(goldenDir, "insert_one.golden"))
	require.NoError(t, err)
}
