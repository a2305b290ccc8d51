package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/roach88/relstore/internal/rdberr"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the store or a scenario reported an error
	ExitCommandError = 2 // the invocation itself was wrong
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err. Store errors stay
// reachable through errors.As.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code for err: the first ExitError in its
// chain, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode is the code printed for err: the store error code when err
// wraps one, otherwise "E" and the exit code.
func ErrorCode(err error) string {
	if code := rdberr.CodeOf(err); code != 0 {
		return strconv.Itoa(int(code))
	}
	return "E" + strconv.Itoa(GetExitCode(err))
}

// Response is the JSON envelope every command writes with --format json.
type Response struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed command. Store holds the store error the
// failure came from, if any.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Store   *StoreError `json:"store,omitempty"`
}

// StoreError is an rdberr.Error as it appears in JSON output.
type StoreError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// storeError extracts the store error wrapped by err, or nil.
func storeError(err error) *StoreError {
	var e *rdberr.Error
	if !errors.As(err, &e) {
		return nil
	}
	out := &StoreError{Code: int(e.Code), Message: e.Message}
	if e.Err != nil {
		out.Cause = e.Err.Error()
	}
	return out
}

// Printer writes command results as text or JSON. Diagnostics go to
// Diag so they never mix with JSON on Out.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

func (p *Printer) isJSON() bool { return p.Format == "json" }

// Print writes a successful result.
func (p *Printer) Print(data any) error {
	if p.isJSON() {
		return p.encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.Out, data)
	return err
}

// Fail turns err into the command's exit error, prefixed with message
// unless message is empty. In JSON mode it also writes the error envelope;
// in text mode main prints the returned error.
func (p *Printer) Fail(message string, err error) error {
	out := err
	if message != "" {
		out = WrapExitError(GetExitCode(err), message, err)
	}
	if p.isJSON() {
		_ = p.encode(Response{Status: "error", Error: &ErrorBody{
			Code:    ErrorCode(err),
			Message: out.Error(),
			Store:   storeError(err),
		}})
	}
	return out
}

// Debugf writes a diagnostic line when --verbose is set.
func (p *Printer) Debugf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func (p *Printer) encode(r Response) error {
	return json.NewEncoder(p.Out).Encode(r)
}
