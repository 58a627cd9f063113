// Package engerr defines the closed error-kind taxonomy shared by every
// CapiForge component. Wrapping never promotes a Kind: a
// Transient error wrapped by a caller is still Transient.
package engerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of caller-visible error classes.
type Kind string

const (
	KindInvalidInput  Kind = "InvalidInput"
	KindNotFound      Kind = "NotFound"
	KindDuplicateNode Kind = "DuplicateNode"
	KindDanglingRef   Kind = "DanglingRef"
	KindInvalidWeight Kind = "InvalidWeight"
	KindCancelled     Kind = "Cancelled"
	KindTransient     Kind = "Transient"
	KindInternal      Kind = "Internal"
)

// Error is a Kind-tagged error that wraps an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error of the given kind from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, walking the wrap chain. Returns
// (KindInternal, false) if no *Error is found in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInternal, false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Sentinel errors for the common no-op-specific cases; each already
// carries its Kind, so callers can either compare with errors.Is or
// inspect KindOf.
var (
	ErrNotFound  = &Error{Kind: KindNotFound, Err: errors.New("not found")}
	ErrEmptySet  = &Error{Kind: KindInvalidInput, Err: errors.New("empty set")}
	ErrCancelled = &Error{Kind: KindCancelled, Err: errors.New("context cancelled")}
)
