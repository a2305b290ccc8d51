package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/relstore/internal/config"
	"github.com/roach88/relstore/internal/logging"
	"github.com/roach88/relstore/internal/rdberr"
)

// StoreConfig describes the store to open.
type StoreConfig struct {
	// Name is the database file name. Required.
	Name string

	// Path overrides the full file path. Defaults to <Dir>/<Name>.
	Path string

	// Encrypt must match the flag the store was created with.
	Encrypt bool

	// SecurityLevel defaults to S1.
	SecurityLevel SecurityLevel
}

// Manager opens, shares and deletes stores. At most one Store is open per
// file path; GetStore with a matching config returns the open handle.
type Manager struct {
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	stores map[string]*Store // by path
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager.
func NewManager(cfg config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logging.Nop(),
		now:    time.Now,
		stores: make(map[string]*Store),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager configuration.
func (m *Manager) Config() config.Config { return m.cfg }

func (m *Manager) resolvePath(sc StoreConfig) (string, error) {
	if sc.Name == "" {
		return "", rdberr.InvalidArgs("name", "not empty")
	}
	if sc.Path != "" {
		return filepath.Clean(sc.Path), nil
	}
	if strings.ContainsAny(sc.Name, `/\`) {
		return "", rdberr.InvalidArgs("name", "a file name without path separators")
	}
	return filepath.Join(m.cfg.Dir, sc.Name), nil
}

// GetStore opens or creates a store. version > 0 sets the schema version
// when it differs from the stored one.
//
// Fails with an argument error for an empty name or unknown security
// level, and with an inner error when Encrypt differs from the flag the
// store was created with.
func (m *Manager) GetStore(ctx context.Context, sc StoreConfig, version int) (*Store, error) {
	path, err := m.resolvePath(sc)
	if err != nil {
		return nil, err
	}
	if sc.SecurityLevel == 0 {
		sc.SecurityLevel = S1
	}
	if !sc.SecurityLevel.Valid() {
		return nil, rdberr.InvalidArgs("securityLevel", "one of S1, S2, S3, S4")
	}
	if version < 0 {
		return nil, rdberr.InvalidArgs("version", ">= 0")
	}

	m.mu.Lock()
	s, ok := m.stores[path]
	if !ok {
		s, err = m.open(ctx, sc, path)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.stores[path] = s
	}
	m.mu.Unlock()

	if s.meta.Encrypt != sc.Encrypt {
		return nil, rdberr.Innerf("encrypt flag mismatch: store was created with encrypt=%t", s.meta.Encrypt)
	}

	if version > 0 {
		current, err := s.Version(ctx)
		if err != nil {
			return nil, err
		}
		if current != version {
			if err := s.SetVersion(ctx, version); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// open creates the Store for path. Caller holds m.mu.
func (m *Manager) open(ctx context.Context, sc StoreConfig, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, rdberr.Inner(fmt.Errorf("failed to create store directory: %w", err))
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	meta, found, err := loadMeta(path)
	if err != nil {
		return nil, rdberr.Inner(err)
	}
	switch {
	case !found && exists:
		// Pre-existing database without a sidecar: plain SQLite file.
		meta = metadata{Encrypt: false, SecurityLevel: sc.SecurityLevel, CreatedAt: m.now().UTC()}
	case !found:
		meta = metadata{Encrypt: sc.Encrypt, SecurityLevel: sc.SecurityLevel, CreatedAt: m.now().UTC()}
	case meta.SecurityLevel != sc.SecurityLevel:
		m.logger.Warn("security level differs from recorded value; keeping recorded level",
			zap.String("store", logging.AnonymizePath(path)),
			zap.Stringer("recorded", meta.SecurityLevel),
			zap.Stringer("requested", sc.SecurityLevel))
	}

	if meta.Encrypt != sc.Encrypt && exists {
		return nil, rdberr.Innerf("encrypt flag mismatch: store was created with encrypt=%t", meta.Encrypt)
	}

	s, err := openStore(ctx, sc.Name, path, m.cfg, meta, m.logger)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := saveMeta(path, meta); err != nil {
			s.Close()
			return nil, rdberr.Inner(err)
		}
	}
	s.onClose = m.forget
	return s, nil
}

// forget drops a closed store from the registry.
func (m *Manager) forget(s *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stores[s.path] == s {
		delete(m.stores, s.path)
	}
}

// DeleteStore closes the named store if open and removes its database,
// journal and metadata files. Deleting a store that does not exist is not
// an error.
func (m *Manager) DeleteStore(ctx context.Context, name string) error {
	return m.DeleteStoreConfig(ctx, StoreConfig{Name: name})
}

// DeleteStoreConfig is DeleteStore for a store opened with an explicit path.
func (m *Manager) DeleteStoreConfig(ctx context.Context, sc StoreConfig) error {
	path, err := m.resolvePath(sc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	s := m.stores[path]
	m.mu.Unlock()
	if s != nil {
		if err := s.Close(); err != nil {
			return err
		}
	}

	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm", metaPath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return rdberr.Inner(fmt.Errorf("failed to remove %s: %w", logging.AnonymizePath(p), err))
		}
	}
	m.logger.Debug("store deleted", zap.String("store", logging.AnonymizePath(path)))
	return nil
}

// Close closes every open store.
func (m *Manager) Close() error {
	m.mu.Lock()
	stores := make([]*Store, 0, len(m.stores))
	for _, s := range m.stores {
		stores = append(stores, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
