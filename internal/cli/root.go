package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/relstore/internal/config"
	"github.com/roach88/relstore/internal/logging"
	"github.com/roach88/relstore/internal/store"
)

// DefaultDatabase is the store file used when --db is not given.
const DefaultDatabase = "relstore.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the relstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "relstore",
		Short: "relstore - relational store on SQLite",
		Long:  "Run SQL, inspect, back up and restore relstore databases, and run store scenarios.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", DefaultDatabase, "path to the store database")

	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// printer returns the output printer for cmd.
func (o *RootOptions) printer(cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  o.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: o.Verbose,
	}
}

// loadConfig reads --config and builds the logger it describes. --verbose
// lowers the level to DEBUG. Logs go to stderr.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	level := cfg.LogLevel
	if o.Verbose {
		level = "DEBUG"
	}
	return cfg, logging.NewWithWriter(cmd.ErrOrStderr(), level, logging.Format(cfg.LogFormat)), nil
}

// session is an opened store plus what is needed to close it.
type session struct {
	manager *store.Manager
	store   *store.Store
	logger  *zap.Logger
}

// openStore opens --db without changing its version.
func (o *RootOptions) openStore(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, logger, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if o.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db must not be empty")
	}

	mgr := store.NewManager(cfg, store.WithLogger(logger))
	sc := store.StoreConfig{Name: filepath.Base(o.Database), Path: o.Database}
	st, err := mgr.GetStore(ctx, sc, 0)
	if err != nil {
		_ = logger.Sync()
		return nil, WrapExitError(ExitFailure, "failed to open store", err)
	}
	return &session{manager: mgr, store: st, logger: logger}, nil
}

func (s *session) Close() {
	if err := s.manager.Close(); err != nil {
		s.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = s.logger.Sync()
}
