package store

import (
	"context"

	"github.com/google/uuid"
)

// DefaultCaller is the caller id used for contexts without WithCaller.
const DefaultCaller = "default"

type callerKey struct{}

type callerInfo struct {
	id     string
	system bool
}

// WithCaller returns a context that identifies a new, distinct caller.
//
// A caller is the unit of same-context reentrancy: while a caller holds an
// ACTIVE transaction on a store, any further transaction or write it starts
// on that store fails immediately with a busy error. Different callers
// contend through SQLite's own locks instead.
func WithCaller(ctx context.Context) context.Context {
	return WithCallerID(ctx, uuid.Must(uuid.NewV7()).String())
}

// WithCallerID is WithCaller with an explicit id. Useful for tests and
// scenario runners that need stable names.
func WithCallerID(ctx context.Context, id string) context.Context {
	info := callerInfo{id: id}
	if prev, ok := ctx.Value(callerKey{}).(callerInfo); ok {
		info.system = prev.system
	}
	return context.WithValue(ctx, callerKey{}, info)
}

// AsSystem marks the context's caller as a system application, which is
// required for Restore.
func AsSystem(ctx context.Context) context.Context {
	info, ok := ctx.Value(callerKey{}).(callerInfo)
	if !ok {
		info.id = DefaultCaller
	}
	info.system = true
	return context.WithValue(ctx, callerKey{}, info)
}

// CallerID returns the caller id carried by ctx.
func CallerID(ctx context.Context) string {
	if info, ok := ctx.Value(callerKey{}).(callerInfo); ok && info.id != "" {
		return info.id
	}
	return DefaultCaller
}

// IsSystem reports whether ctx belongs to a system caller.
func IsSystem(ctx context.Context) bool {
	info, ok := ctx.Value(callerKey{}).(callerInfo)
	return ok && info.system
}
