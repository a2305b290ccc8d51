package cli

import (
	"context"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/relstore/internal/value"
)

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run a SELECT and print the rows",
		Long: `Run a read-only statement and print the result set as a table.

Arguments bind to ? placeholders the same way as for exec.

Examples:
  relstore query "SELECT * FROM test"
  relstore query "SELECT * FROM test WHERE name = ?" zhangsan
  relstore query "SELECT COUNT(*) AS n FROM test" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd, args[0], args[1:])
		},
	}
}

func runQuery(opts *RootOptions, cmd *cobra.Command, sql string, rawArgs []string) error {
	ctx := context.Background()
	f := opts.printer(cmd)

	sess, err := opts.openStore(ctx, cmd)
	if err != nil {
		return f.Fail("", err)
	}
	defer sess.Close()

	args := parseArgs(rawArgs)
	f.Debugf("query: %s %s", sql, describeArgs(args))
	rs, err := sess.store.QuerySql(ctx, sql, args...)
	if err != nil {
		return f.Fail("query failed", err)
	}
	defer rs.Close()

	columns := rs.ColumnNames()
	var rows []value.Row
	if n := rs.RowCount(); n > 0 {
		if rows, err = rs.GetRows(n, 0); err != nil {
			return f.Fail("query failed", err)
		}
	}

	if opts.Format == "json" {
		result := QueryResult{Columns: columns, Rows: make([]map[string]any, len(rows)), Count: len(rows)}
		for i, row := range rows {
			m := make(map[string]any, len(row))
			for k, v := range row {
				m[k] = value.Native(v)
			}
			result.Rows[i] = m
		}
		return f.Print(result)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	table.Header(header...)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = value.String(row[c])
		}
		if err := table.Append(cells); err != nil {
			return WrapExitError(ExitFailure, "failed to render table", err)
		}
	}
	if err := table.Render(); err != nil {
		return WrapExitError(ExitFailure, "failed to render table", err)
	}
	f.Debugf("%d row(s)", len(rows))
	return nil
}
