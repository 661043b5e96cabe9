// Package agierr provides the structured error hierarchy shared by every
// component of the cognitive execution pipeline. It preserves message and
// causal context while supporting errors.Is/As, generalizing the tool-error
// chain pattern used elsewhere in this codebase to the pipeline's six error
// kinds.
package agierr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error for caller-side dispatch, matching the
// error kinds the Orchestrator and Facade distinguish between.
type Kind string

const (
	// KindConfiguration marks missing credentials; surfaces as a
	// config_required event and halts execution.
	KindConfiguration Kind = "configuration"
	// KindValidation marks input-schema violations, malformed plan JSON,
	// or DAG cycles. Never retried.
	KindValidation Kind = "validation"
	// KindExecution marks a skill raising, timing out, or reporting
	// success=false. Eligible for the repair path.
	KindExecution Kind = "execution"
	// KindCorrection marks a Corrector failure (returned nothing, or the
	// retry also failed). Collapses into KindExecution handling.
	KindCorrection Kind = "correction"
	// KindTransientModel marks provider rate limits or 5xx responses.
	// Propagates as KindExecution; no special handling at this layer.
	KindTransientModel Kind = "transient_model"
	// KindFatalSystem marks unrecoverable infrastructure failure
	// (database unavailable, event loop stopped). Aborts execution.
	KindFatalSystem Kind = "fatal_system"
)

// Error is the structured error type returned across package boundaries
// in this module. It chains via Cause so errors.Is/As see the full
// history while the Kind of the outermost Error determines dispatch.
type Error struct {
	Kind    Kind
	Message string
	Cause   *Error
}

// New constructs an Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = string(kind) + " error"
	}
	return &Error{Kind: kind, Message: message}
}

// Newf formats message and returns an *Error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs an Error of the given kind that wraps an underlying
// error, converting it into an Error chain so Kind and message survive
// serialization while errors.Is/As keep working through Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an *Error chain, preserving
// Kind if err already is (or wraps) an *Error; otherwise it is classified
// KindExecution, the most common caller-facing default.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:    KindExecution,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap supports errors.Is/As through the Cause chain.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, letting
// callers write errors.Is(err, agierr.New(agierr.KindConfiguration, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether kind matches err's Kind (or any Error in its chain).
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for cur := e; cur != nil; cur = cur.Cause {
		if cur.Kind == kind {
			return true
		}
	}
	return false
}
