// Package coreerr defines the closed error taxonomy used throughout the
// task and knowledge coordination core. Every recoverable failure is a
// *Error carrying a Kind from this taxonomy instead of relying on
// reflection-based isX checks or untyped error strings; see spec §7.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind tags the category of an Error.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindNotFound            Kind = "NOT_FOUND"
	KindDuplicate           Kind = "DUPLICATE"
	KindStatusTransition    Kind = "STATUS_TRANSITION"
	KindDependencyCycle     Kind = "DEPENDENCY_CYCLE"
	KindDependencyNotMet    Kind = "DEPENDENCY_NOT_MET"
	KindHasChildren         Kind = "HAS_CHILDREN"
	KindHasDependents       Kind = "HAS_DEPENDENTS"
	KindLimitExceeded       Kind = "LIMIT_EXCEEDED"
	KindTransaction         Kind = "TRANSACTION_ERROR"
	KindTransactionNotFound Kind = "TRANSACTION_NOT_FOUND"
	KindTransactionTimeout  Kind = "TRANSACTION_TIMEOUT"
	KindConflict            Kind = "CONFLICT"
	KindStorageIO           Kind = "STORAGE_IO"
	KindStorageCorrupt      Kind = "STORAGE_CORRUPT"
	KindCache               Kind = "CACHE_ERROR"
	KindOverload            Kind = "OVERLOAD"
	KindInternal            Kind = "INTERNAL"
)

// Error is the single structured error type surfaced to callers. It never
// carries a stack trace and must not leak internal filesystem paths.
type Error struct {
	Kind          Kind
	Message       string
	Path          string
	Rule          string
	Details       map[string]any
	CorrelationID string
	retryable     bool
	cause         error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the failure represents a transient
// busy/locked/deadlock condition that a caller (or the transaction
// coordinator) may retry.
func (e *Error) Retryable() bool { return e.retryable }

// New constructs a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs a new Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying cause with a taxonomy Kind.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithPath returns a copy of the error annotated with the offending path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// WithRule returns a copy of the error annotated with the validation rule
// that produced it.
func (e *Error) WithRule(rule string) *Error {
	c := *e
	c.Rule = rule
	return &c
}

// WithDetails returns a copy of the error annotated with structured detail
// fields (e.g. {"unmet": [...]})
func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithCorrelationID returns a copy of the error tagged with a tracer
// correlation id for cross-log correlation (spec §7).
func (e *Error) WithCorrelationID(id string) *Error {
	c := *e
	c.CorrelationID = id
	return &c
}

// AsRetryable returns a copy of the error marked retryable.
func (e *Error) AsRetryable() *Error {
	c := *e
	c.retryable = true
	return &c
}

// Is supports errors.Is comparisons by Kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.retryable
	}
	return false
}

// Fatal reports whether the Kind represents an unrecoverable condition that
// should terminate the process after a final backup attempt (spec §4.10).
func (k Kind) Fatal() bool {
	return k == KindStorageCorrupt
}
