package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, JournalDelete, cfg.JournalMode)
	assert.Equal(t, 2*time.Second, cfg.BusyTimeout)
	assert.Equal(t, 64, cfg.StatementCacheSize)
	assert.False(t, cfg.AutoRollbackOnError)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
dir: /tmp/stores
journal_mode: wal
busy_timeout: 500ms
statement_cache_size: 8
auto_rollback_on_error: true
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/stores", cfg.Dir)
	assert.Equal(t, JournalWAL, cfg.JournalMode)
	assert.Equal(t, 500*time.Millisecond, cfg.BusyTimeout)
	assert.Equal(t, 8, cfg.StatementCacheSize)
	assert.True(t, cfg.AutoRollbackOnError)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown journal mode", "journal_mode: OFF\n"},
		{"cache too large", "statement_cache_size: 100000\n"},
		{"bad log format", "log_format: XML\n"},
		{"bad duration", "busy_timeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("busy_timeout: 3s\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.BusyTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
