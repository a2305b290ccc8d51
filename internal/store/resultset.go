package store

import (
	"sync"

	"github.com/roach88/relstore/internal/rdberr"
	"github.com/roach88/relstore/internal/value"
)

// ResultSet is a cursor over the rows of one query.
//
// The cursor starts before the first row (RowIndex() == -1). Rows are
// materialized when the query runs, so moving the cursor never touches the
// database. A ResultSet is owned by the caller that obtained it and is not
// safe for use by several goroutines at once.
type ResultSet struct {
	mu       sync.Mutex
	columns  []string
	rows     [][]value.Value
	position int
	closed   bool
}

func newResultSet(columns []string, rows [][]value.Value) *ResultSet {
	return &ResultSet{columns: columns, rows: rows, position: -1}
}

// RowCount is the number of rows in the result set, or 0 once closed.
func (rs *ResultSet) RowCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return 0
	}
	return len(rs.rows)
}

// ColumnCount is the number of projected columns.
func (rs *ResultSet) ColumnCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return 0
	}
	return len(rs.columns)
}

// ColumnNames returns the projected column names.
func (rs *ResultSet) ColumnNames() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return []string{}
	}
	out := make([]string, len(rs.columns))
	copy(out, rs.columns)
	return out
}

// RowIndex is the current position, -1 before the first row and RowCount()
// after the last.
func (rs *ResultSet) RowIndex() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.position
}

// IsClosed reports whether Close was called.
func (rs *ResultSet) IsClosed() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.closed
}

// IsStarted reports whether the cursor moved off the before-first position.
func (rs *ResultSet) IsStarted() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.position != -1
}

// IsEnded reports whether the cursor is past the last row.
func (rs *ResultSet) IsEnded() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rows) == 0 || rs.position >= len(rs.rows)
}

// IsAtFirstRow reports whether the cursor is on row 0.
func (rs *ResultSet) IsAtFirstRow() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rows) > 0 && rs.position == 0
}

// IsAtLastRow reports whether the cursor is on the last row.
func (rs *ResultSet) IsAtLastRow() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rows) > 0 && rs.position == len(rs.rows)-1
}

// moveTo places the cursor on pos. Out of range positions clamp to
// before-first or after-last and report false. Caller holds rs.mu.
func (rs *ResultSet) moveTo(pos int) (bool, error) {
	if rs.closed {
		return false, rdberr.AlreadyClosed()
	}
	switch {
	case pos < 0:
		rs.position = -1
		return false, nil
	case pos >= len(rs.rows):
		rs.position = len(rs.rows)
		return false, nil
	default:
		rs.position = pos
		return true, nil
	}
}

// GoToFirstRow moves to the first row. False if the result set is empty.
func (rs *ResultSet) GoToFirstRow() (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(0)
}

// GoToLastRow moves to the last row. False if the result set is empty.
func (rs *ResultSet) GoToLastRow() (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.rows) == 0 {
		return rs.moveTo(0)
	}
	return rs.moveTo(len(rs.rows) - 1)
}

// GoToNextRow moves forward one row. False once past the last row.
func (rs *ResultSet) GoToNextRow() (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(rs.position + 1)
}

// GoToPreviousRow moves back one row. False once before the first row.
func (rs *ResultSet) GoToPreviousRow() (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(rs.position - 1)
}

// GoToRow moves to an absolute position.
func (rs *ResultSet) GoToRow(pos int) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(pos)
}

// GoTo moves by offset rows relative to the current position.
func (rs *ResultSet) GoTo(offset int) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.moveTo(rs.position + offset)
}

// current returns the row under the cursor. Caller holds rs.mu.
func (rs *ResultSet) current() ([]value.Value, error) {
	if rs.closed {
		return nil, rdberr.AlreadyClosed()
	}
	if rs.position < 0 || rs.position >= len(rs.rows) {
		return nil, rdberr.GotoFailed()
	}
	return rs.rows[rs.position], nil
}

func (rs *ResultSet) rowAt(i int) value.Row {
	out := make(value.Row, len(rs.columns))
	for c, name := range rs.columns {
		out[name] = rs.rows[i][c]
	}
	return out
}

// GetRow returns the current row as a column→value map. Only projected
// columns are present; NULL and empty blobs read as value.Null.
func (rs *ResultSet) GetRow() (value.Row, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, err := rs.current(); err != nil {
		return nil, err
	}
	return rs.rowAt(rs.position), nil
}

// GetRows returns up to maxCount consecutive rows starting at the current
// position (row 0 if the cursor has not started), or at position[0] when
// given. The cursor is left just after the last returned row.
//
// A closed result set, or a start position at or beyond RowCount, yields
// an empty batch rather than an error.
func (rs *ResultSet) GetRows(maxCount int, position ...int) ([]value.Row, error) {
	if maxCount <= 0 {
		return nil, rdberr.InvalidArgs("maxCount", "a positive number")
	}
	if len(position) > 1 {
		return nil, rdberr.ParamCount(2)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return []value.Row{}, nil
	}

	start := rs.position
	if len(position) == 1 {
		start = position[0]
		if start < 0 {
			return nil, rdberr.InvalidArgs("position", "a non-negative number")
		}
	}
	if start < 0 {
		start = 0
	}
	if start >= len(rs.rows) {
		return []value.Row{}, nil
	}

	end := min(start+maxCount, len(rs.rows))
	out := make([]value.Row, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, rs.rowAt(i))
	}
	rs.position = end
	return out, nil
}

// GetColumnIndex returns the index of column name, or -1 with an
// argument error if it is not projected.
func (rs *ResultSet) GetColumnIndex(name string) (int, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return -1, rdberr.AlreadyClosed()
	}
	for i, c := range rs.columns {
		if c == name {
			return i, nil
		}
	}
	return -1, rdberr.InvalidArgs("columnName", "a column of the result set")
}

// GetColumnName returns the name of column i.
func (rs *ResultSet) GetColumnName(i int) (string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return "", rdberr.AlreadyClosed()
	}
	if i < 0 || i >= len(rs.columns) {
		return "", rdberr.InvalidArgs("columnIndex", "a valid column index")
	}
	return rs.columns[i], nil
}

// GetValue returns column i of the current row.
func (rs *ResultSet) GetValue(i int) (value.Value, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	row, err := rs.current()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(row) {
		return nil, rdberr.InvalidArgs("columnIndex", "a valid column index")
	}
	return row[i], nil
}

// IsColumnNull reports whether column i of the current row is NULL.
func (rs *ResultSet) IsColumnNull(i int) (bool, error) {
	v, err := rs.GetValue(i)
	if err != nil {
		return false, err
	}
	return value.IsNull(v), nil
}

// GetLong returns column i as an integer. Reals truncate, text parses
// leniently, NULL reads as 0.
func (rs *ResultSet) GetLong(i int) (int64, error) {
	v, err := rs.GetValue(i)
	if err != nil {
		return 0, err
	}
	return value.AsInt64(v), nil
}

// GetDouble returns column i as a float. NULL reads as 0.
func (rs *ResultSet) GetDouble(i int) (float64, error) {
	v, err := rs.GetValue(i)
	if err != nil {
		return 0, err
	}
	return value.AsFloat64(v), nil
}

// GetString returns column i as text. NULL reads as "".
func (rs *ResultSet) GetString(i int) (string, error) {
	v, err := rs.GetValue(i)
	if err != nil {
		return "", err
	}
	if value.IsNull(v) {
		return "", nil
	}
	return value.String(v), nil
}

// GetBlob returns column i as bytes. NULL reads as an empty slice.
func (rs *ResultSet) GetBlob(i int) ([]byte, error) {
	v, err := rs.GetValue(i)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case value.Blob:
		return []byte(val), nil
	case value.Text:
		return []byte(val), nil
	default:
		return []byte{}, nil
	}
}

// GetBool returns column i as a boolean: any non-zero integer is true.
func (rs *ResultSet) GetBool(i int) (bool, error) {
	v, err := rs.GetValue(i)
	if err != nil {
		return false, err
	}
	if b, ok := v.(value.Bool); ok {
		return bool(b), nil
	}
	return value.AsInt64(v) != 0, nil
}

// Close releases the rows. Safe to call more than once.
func (rs *ResultSet) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.closed = true
	rs.rows = nil
	rs.position = -1
	return nil
}
