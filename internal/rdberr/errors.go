// Package rdberr defines the coded errors returned by the store.
//
// Every error a caller can observe from a store, transaction or result set
// is an *Error (possibly wrapped). Use CodeOf or the IsXxx helpers to
// inspect it; they unwrap with errors.As.
package rdberr

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Code identifies the error category. Values are stable and user visible.
type Code int

const (
	// CodeNotSystemApp: the caller is not allowed to use a system-only API.
	CodeNotSystemApp Code = 202

	// CodeInvalidArgs: wrong argument shape, count or value.
	CodeInvalidArgs Code = 401

	// CodeInnerError: generic engine or state error.
	CodeInnerError Code = 14800000

	// CodeInvalidFile: the database file is missing or not a database.
	CodeInvalidFile Code = 14800011

	// CodeGotoFailed: result set is empty or the target position is invalid.
	CodeGotoFailed Code = 14800012

	// CodeAlreadyClosed: the store or result set was already closed.
	CodeAlreadyClosed Code = 14800014

	// CodeBusy: the database is locked by another connection or transaction.
	CodeBusy Code = 14800024
)

// Error is a coded store error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is the user-visible description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidArgs reports a parameter that failed validation.
func InvalidArgs(name, want string) *Error {
	return &Error{
		Code:    CodeInvalidArgs,
		Message: fmt.Sprintf("Parameter error. The %s must be %s", name, want),
	}
}

// ParamCount reports a call with too few parameters.
func ParamCount(n int) *Error {
	return &Error{
		Code:    CodeInvalidArgs,
		Message: fmt.Sprintf("Parameter error. Need %d parameter(s)!", n),
	}
}

// NotSystemApp reports a system-only API used by a regular caller.
func NotSystemApp() *Error {
	return &Error{
		Code:    CodeNotSystemApp,
		Message: "Permission verification failed, application which is not a system application uses system API.",
	}
}

// Inner wraps an engine failure.
func Inner(err error) *Error {
	return &Error{Code: CodeInnerError, Message: "Inner error.", Err: err}
}

// Innerf builds an inner error from a format string.
func Innerf(format string, args ...any) *Error {
	return &Error{Code: CodeInnerError, Message: "Inner error. " + fmt.Sprintf(format, args...)}
}

// InvalidFile reports an unusable database file.
func InvalidFile(err error) *Error {
	return &Error{Code: CodeInvalidFile, Message: "Failed to open database by database corrupted.", Err: err}
}

// GotoFailed reports an invalid cursor move.
func GotoFailed() *Error {
	return &Error{Code: CodeGotoFailed, Message: "The result set is empty or the specified location is invalid."}
}

// AlreadyClosed reports use of a closed store or result set.
func AlreadyClosed() *Error {
	return &Error{Code: CodeAlreadyClosed, Message: "The RdbStore or ResultSet is already closed."}
}

// Busy reports lock contention.
func Busy(err error) *Error {
	return &Error{Code: CodeBusy, Message: "The database is busy.", Err: err}
}

// FromSQLite converts a driver error into a coded error.
// Coded errors pass through unchanged; nil stays nil.
func FromSQLite(err error) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return Busy(err)
		case sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrCantOpen:
			return InvalidFile(err)
		}
	}
	return Inner(err)
}

// CodeOf extracts the code from err. Returns 0 if err is not coded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsBusy reports whether err is a contention error.
func IsBusy(err error) bool {
	return Is(err, CodeBusy)
}

// IsClosed reports whether err is an already-closed error.
func IsClosed(err error) bool {
	return Is(err, CodeAlreadyClosed)
}

// IsConstraint reports whether err was caused by a constraint violation.
func IsConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
