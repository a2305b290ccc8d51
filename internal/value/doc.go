// Package value defines the column values stored in and read from a store.
//
// A Value is one of:
//   - Null: SQL NULL (also what an empty Blob becomes on write)
//   - Integer: 64-bit signed integer
//   - Real: 64-bit float
//   - Text: UTF-8 string
//   - Blob: byte sequence
//   - Bool: stored as INTEGER 0/1
//
// Undefined is not a storable value. It marks a Row field that the caller
// left unspecified, so writers skip the column entirely instead of writing
// NULL.
//
// Rows are plain maps from column name to Value. Use SortedKeys for any
// iteration whose order is observable (generated SQL, traces).
package value
