package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Value is a sealed interface over the storable column types.
type Value interface {
	value() // sealed
}

// Null is SQL NULL.
type Null struct{}

func (Null) value() {}

// Integer is a 64-bit signed integer column value.
type Integer int64

func (Integer) value() {}

// Real is a floating point column value.
type Real float64

func (Real) value() {}

// Text is a string column value.
type Text string

func (Text) value() {}

// Blob is a byte sequence column value.
type Blob []byte

func (Blob) value() {}

// Bool is a boolean column value, stored as INTEGER 0/1.
type Bool bool

func (Bool) value() {}

// Undefined marks a field that was not specified. Writers omit it.
type Undefined struct{}

func (Undefined) value() {}

// Row maps column names to values.
type Row map[string]Value

// SortedKeys returns the row's column names in byte order.
func (r Row) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Defined returns a copy of the row without Undefined fields.
func (r Row) Defined() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if _, skip := v.(Undefined); skip || v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// Of converts a Go value into a Value.
// Accepted: nil, Value, all int/uint widths that fit int64, float32/64,
// string, []byte, bool. Anything else is an error.
func Of(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case int:
		return Integer(val), nil
	case int8:
		return Integer(val), nil
	case int16:
		return Integer(val), nil
	case int32:
		return Integer(val), nil
	case int64:
		return Integer(val), nil
	case uint8:
		return Integer(val), nil
	case uint16:
		return Integer(val), nil
	case uint32:
		return Integer(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer overflows int64: %d", val)
		}
		return Integer(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer overflows int64: %d", val)
		}
		return Integer(val), nil
	case float32:
		return Real(val), nil
	case float64:
		return Real(val), nil
	case string:
		return Text(val), nil
	case []byte:
		return Blob(val), nil
	case bool:
		return Bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// MustOf is Of for literals known to be valid. It panics on error.
func MustOf(v any) Value {
	out, err := Of(v)
	if err != nil {
		panic(err)
	}
	return out
}

// RowOf converts a map of Go values into a Row.
func RowOf(m map[string]any) (Row, error) {
	row := make(Row, len(m))
	for k, v := range m {
		val, err := Of(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		row[k] = val
	}
	return row, nil
}

// Param returns the driver argument for a value.
// Empty blobs bind as NULL; bools bind as 0/1.
func Param(v Value) any {
	switch val := v.(type) {
	case nil, Null, Undefined:
		return nil
	case Integer:
		return int64(val)
	case Real:
		return float64(val)
	case Text:
		return string(val)
	case Blob:
		if len(val) == 0 {
			return nil
		}
		return []byte(val)
	case Bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return nil
	}
}

// FromColumn converts a value scanned by database/sql into a Value.
// The driver yields int64, float64, string, []byte, bool, time or nil.
func FromColumn(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case int64:
		return Integer(val)
	case float64:
		return Real(val)
	case string:
		return Text(val)
	case []byte:
		if len(val) == 0 {
			return Null{}
		}
		// Scanned slices are reused by the driver.
		cp := make([]byte, len(val))
		copy(cp, val)
		return Blob(cp)
	case bool:
		return Bool(val)
	case fmt.Stringer:
		return Text(val.String())
	default:
		return Text(fmt.Sprint(val))
	}
}

// Native converts a value back into a plain Go value.
func Native(v Value) any {
	switch val := v.(type) {
	case nil, Null, Undefined:
		return nil
	case Integer:
		return int64(val)
	case Real:
		return float64(val)
	case Text:
		return string(val)
	case Blob:
		return []byte(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// IsNull reports whether v reads as SQL NULL.
func IsNull(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case Blob:
		return len(val) == 0
	default:
		return false
	}
}

// String renders a value for human output.
func String(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "NULL"
	case Undefined:
		return "undefined"
	case Integer:
		return strconv.FormatInt(int64(val), 10)
	case Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Text:
		return string(val)
	case Blob:
		return fmt.Sprintf("x'%x'", []byte(val))
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprint(val)
	}
}

// AsInt64 coerces a value to an integer the way SQLite's
// sqlite3_column_int64 does: reals truncate, text parses its leading
// number, NULL and blobs read as 0.
func AsInt64(v Value) int64 {
	switch val := v.(type) {
	case Integer:
		return int64(val)
	case Real:
		return int64(val)
	case Bool:
		if val {
			return 1
		}
		return 0
	case Text:
		if n, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(string(val), 64); err == nil {
			return int64(f)
		}
		return 0
	default:
		return 0
	}
}

// AsFloat64 coerces a value to a float. NULL and blobs read as 0.
func AsFloat64(v Value) float64 {
	switch val := v.(type) {
	case Integer:
		return float64(val)
	case Real:
		return float64(val)
	case Bool:
		if val {
			return 1
		}
		return 0
	case Text:
		if f, err := strconv.ParseFloat(string(val), 64); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}
