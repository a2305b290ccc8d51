package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// InfoResult is the JSON payload of the info command.
type InfoResult struct {
	Path          string    `json:"path"`
	Version       int       `json:"version"`
	Encrypted     bool      `json:"encrypted"`
	SecurityLevel string    `json:"security_level"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show store metadata",
		Long: `Show the store path, schema version, encrypt flag, security level,
file size and creation time. Opening a missing store creates it.

Examples:
  relstore info --db ./rdbstore.db
  relstore info --db ./rdbstore.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, cmd)
		},
	}
}

func runInfo(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := opts.printer(cmd)

	sess, err := opts.openStore(ctx, cmd)
	if err != nil {
		return f.Fail("", err)
	}
	defer sess.Close()

	st := sess.store
	version, err := st.Version(ctx)
	if err != nil {
		return f.Fail("failed to read version", err)
	}
	fi, err := os.Stat(st.Path())
	if err != nil {
		return f.Fail("failed to stat store", WrapExitError(ExitFailure, "stat", err))
	}

	info := InfoResult{
		Path:          st.Path(),
		Version:       version,
		Encrypted:     st.Encrypted(),
		SecurityLevel: st.SecurityLevel().String(),
		SizeBytes:     fi.Size(),
		CreatedAt:     st.CreatedAt(),
	}
	if opts.Format == "json" {
		return f.Print(info)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Path:           %s\n", info.Path)
	fmt.Fprintf(w, "Version:        %d\n", info.Version)
	fmt.Fprintf(w, "Encrypted:      %t\n", info.Encrypted)
	fmt.Fprintf(w, "Security level: %s\n", info.SecurityLevel)
	fmt.Fprintf(w, "Size:           %s\n", humanize.IBytes(uint64(info.SizeBytes)))
	fmt.Fprintf(w, "Created:        %s (%s)\n", info.CreatedAt.Format(time.RFC3339), humanize.Time(info.CreatedAt))
	return nil
}
