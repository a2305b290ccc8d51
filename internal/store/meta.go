package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relstore/internal/rdberr"
)

// SecurityLevel classifies how sensitive a store's data is.
type SecurityLevel int

const (
	S1 SecurityLevel = iota + 1
	S2
	S3
	S4
)

func (l SecurityLevel) String() string {
	if l.Valid() {
		return fmt.Sprintf("S%d", int(l))
	}
	return fmt.Sprintf("SecurityLevel(%d)", int(l))
}

// Valid reports whether l is one of S1..S4.
func (l SecurityLevel) Valid() bool {
	return l >= S1 && l <= S4
}

// ParseSecurityLevel parses "S1".."S4" (case-insensitive).
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S1":
		return S1, nil
	case "S2":
		return S2, nil
	case "S3":
		return S3, nil
	case "S4":
		return S4, nil
	}
	return 0, rdberr.InvalidArgs("securityLevel", "one of S1, S2, S3, S4")
}

// MarshalYAML writes the level as "S1".."S4".
func (l SecurityLevel) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// UnmarshalYAML reads "S1".."S4".
func (l *SecurityLevel) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseSecurityLevel(node.Value)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// metadata is persisted next to the database as <db>.meta.
type metadata struct {
	Encrypt       bool          `yaml:"encrypt"`
	SecurityLevel SecurityLevel `yaml:"security_level"`
	CreatedAt     time.Time     `yaml:"created_at"`
}

func metaPath(dbPath string) string {
	return dbPath + ".meta"
}

// loadMeta reads the sidecar. found is false when it does not exist.
func loadMeta(dbPath string) (m metadata, found bool, err error) {
	data, err := os.ReadFile(metaPath(dbPath))
	if errors.Is(err, os.ErrNotExist) {
		return metadata{}, false, nil
	}
	if err != nil {
		return metadata{}, false, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return metadata{}, false, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return m, true, nil
}

func saveMeta(dbPath string, m metadata) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath(dbPath), data, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
