package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relstore/internal/value"
)

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Execute one SQL statement",
		Long: `Execute one SQL statement and print its result.

INSERT prints the new row id, UPDATE and DELETE print the number of
changed rows, PRAGMA prints its value. Other statements print NULL.

Arguments bind to ? placeholders in order. Integers and reals bind as
numbers, null binds NULL, x'0102' binds a blob, anything else is text.

Examples:
  relstore exec "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)"
  relstore exec "INSERT INTO test (name) VALUES (?)" zhangsan
  relstore exec "PRAGMA user_version" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(rootOpts, cmd, args[0], args[1:])
		},
	}
}

func runExec(opts *RootOptions, cmd *cobra.Command, sql string, rawArgs []string) error {
	ctx := context.Background()
	f := opts.printer(cmd)

	sess, err := opts.openStore(ctx, cmd)
	if err != nil {
		return f.Fail("", err)
	}
	defer sess.Close()

	args := parseArgs(rawArgs)
	f.Debugf("exec: %s %s", sql, describeArgs(args))
	v, err := sess.store.Execute(ctx, sql, args...)
	if err != nil {
		return f.Fail("exec failed", err)
	}

	if opts.Format == "json" {
		return f.Print(map[string]any{"value": value.Native(v)})
	}
	return f.Print(value.String(v))
}

// parseArgs converts command line arguments into bind values.
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		out[i] = parseArg(s)
	}
	return out
}

func parseArg(s string) value.Value {
	if strings.EqualFold(s, "null") {
		return value.Null{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Integer(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Real(f)
	}
	if len(s) >= 3 && (s[0] == 'x' || s[0] == 'X') && s[1] == '\'' && s[len(s)-1] == '\'' {
		if b, err := hex.DecodeString(s[2 : len(s)-1]); err == nil {
			return value.Blob(b)
		}
	}
	return value.Text(s)
}

// describeArgs renders bind values for verbose output.
func describeArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = value.String(a.(value.Value))
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
