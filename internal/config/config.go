// Package config loads store manager settings.
//
// Settings come from a YAML file validated against an embedded CUE schema.
// Any field left out of the file keeps its default.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Journal modes accepted by SQLite.
const (
	JournalDelete   = "DELETE"
	JournalTruncate = "TRUNCATE"
	JournalPersist  = "PERSIST"
	JournalWAL      = "WAL"
	JournalMemory   = "MEMORY"
)

// Defaults.
const (
	DefaultJournalMode        = JournalDelete
	DefaultBusyTimeout        = 2 * time.Second
	DefaultStatementCacheSize = 64
	DefaultLogLevel           = "INFO"
	DefaultLogFormat          = "CONSOLE"
)

// Config holds manager-wide settings.
type Config struct {
	// Dir is where stores opened by name only are created.
	Dir string `yaml:"dir"`

	// JournalMode is applied to every opened store. DELETE (rollback
	// journal) makes EXCLUSIVE transactions block readers; WAL does not.
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout bounds how long a statement waits on a lock held by
	// another connection before failing with a busy error.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// StatementCacheSize is the prepared statement LRU capacity per store.
	// Zero disables caching.
	StatementCacheSize int `yaml:"statement_cache_size"`

	// AutoRollbackOnError rolls a transaction back when one of its
	// statements fails. Off by default; callers roll back explicitly.
	AutoRollbackOnError bool `yaml:"auto_rollback_on_error"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Dir:                ".",
		JournalMode:        DefaultJournalMode,
		BusyTimeout:        DefaultBusyTimeout,
		StatementCacheSize: DefaultStatementCacheSize,
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
	}
}

// fileConfig mirrors Config with YAML-friendly types. Pointers tell
// "absent" apart from zero values.
type fileConfig struct {
	Dir                 *string `yaml:"dir,omitempty" json:"dir,omitempty"`
	JournalMode         *string `yaml:"journal_mode,omitempty" json:"journal_mode,omitempty"`
	BusyTimeout         *string `yaml:"busy_timeout,omitempty" json:"busy_timeout,omitempty"`
	StatementCacheSize  *int    `yaml:"statement_cache_size,omitempty" json:"statement_cache_size,omitempty"`
	AutoRollbackOnError *bool   `yaml:"auto_rollback_on_error,omitempty" json:"auto_rollback_on_error,omitempty"`
	LogLevel            *string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFormat           *string `yaml:"log_format,omitempty" json:"log_format,omitempty"`
}

// Load reads a YAML config file. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config bytes.
func Parse(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	normalize(&fc)

	if err := validate(fc); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if fc.Dir != nil {
		cfg.Dir = *fc.Dir
	}
	if fc.JournalMode != nil {
		cfg.JournalMode = *fc.JournalMode
	}
	if fc.BusyTimeout != nil {
		d, err := time.ParseDuration(*fc.BusyTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid busy_timeout %q: %w", *fc.BusyTimeout, err)
		}
		if d < 0 {
			return Config{}, fmt.Errorf("invalid busy_timeout %q: must not be negative", *fc.BusyTimeout)
		}
		cfg.BusyTimeout = d
	}
	if fc.StatementCacheSize != nil {
		cfg.StatementCacheSize = *fc.StatementCacheSize
	}
	if fc.AutoRollbackOnError != nil {
		cfg.AutoRollbackOnError = *fc.AutoRollbackOnError
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		cfg.LogFormat = *fc.LogFormat
	}
	return cfg, nil
}

// normalize upper-cases enum-like fields so the schema stays strict.
func normalize(fc *fileConfig) {
	for _, s := range []*string{fc.JournalMode, fc.LogLevel, fc.LogFormat} {
		if s != nil {
			*s = strings.ToUpper(*s)
		}
	}
}

// validate unifies the decoded file with the #Config schema.
func validate(fc fileConfig) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(fc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
