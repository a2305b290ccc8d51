package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relstore/internal/store"
)

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest>",
		Short: "Write a consistent copy of the store",
		Long: `Write a consistent copy of the store to dest. An existing file at
dest is replaced.

Examples:
  relstore backup --db ./rdbstore.db ./rdbstore.bak`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(rootOpts, cmd, args[0])
		},
	}
}

func runBackup(opts *RootOptions, cmd *cobra.Command, dest string) error {
	ctx := context.Background()
	f := opts.printer(cmd)

	sess, err := opts.openStore(ctx, cmd)
	if err != nil {
		return f.Fail("", err)
	}
	defer sess.Close()

	if err := sess.store.Backup(ctx, dest); err != nil {
		return f.Fail("backup failed", err)
	}
	if opts.Format == "json" {
		return f.Print(map[string]string{"backup": dest})
	}
	return f.Print(fmt.Sprintf("backed up to %s", dest))
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <src>",
		Short: "Replace the store contents from a backup",
		Long: `Replace the store contents with the database at src. The CLI acts
as a system caller, which restore requires.

Examples:
  relstore restore --db ./rdbstore.db ./rdbstore.bak`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(rootOpts, cmd, args[0])
		},
	}
}

func runRestore(opts *RootOptions, cmd *cobra.Command, src string) error {
	ctx := store.AsSystem(context.Background())
	f := opts.printer(cmd)

	sess, err := opts.openStore(ctx, cmd)
	if err != nil {
		return f.Fail("", err)
	}
	defer sess.Close()

	if err := sess.store.Restore(ctx, src); err != nil {
		return f.Fail("restore failed", err)
	}
	if opts.Format == "json" {
		return f.Print(map[string]string{"restored": src})
	}
	return f.Print(fmt.Sprintf("restored from %s", src))
}
