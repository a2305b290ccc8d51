package store

import (
	"context"

	"github.com/roach88/relstore/internal/value"
)

// readAll runs a query and materializes every row.
//
// Rows are read to completion before returning so no SQLite read lock
// outlives the call. The returned slice is empty rather than nil.
func readAll(ctx context.Context, r runner, st statement) ([]string, [][]value.Value, error) {
	rows, err := r.QueryContext(ctx, st.sql, st.args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	data := make([][]value.Value, 0, 16)
	dest := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]value.Value, len(columns))
		for i, v := range dest {
			row[i] = value.FromColumn(v)
		}
		data = append(data, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, data, nil
}
