// Package fault defines the error taxonomy shared by the agent packages.
// Kinds are an explicit enum so recovery policy can switch on them
// exhaustively instead of inspecting error types.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery-policy purposes.
type Kind int

const (
	// KindUnknown is the zero value; errors without a kind behave like
	// execution failures for recovery purposes.
	KindUnknown Kind = iota

	// KindGeneration is an LLM call that failed or returned unusable code.
	KindGeneration

	// KindInvalidOutputType means generated code produced a result that does
	// not match the requested output type. Selects the output-type
	// corrective prompt instead of the generic one.
	KindInvalidOutputType

	// KindExecution is generated code failing while running.
	KindExecution

	// KindDispatch is a SQL rewrite or backend dispatch failure. Not retried.
	KindDispatch

	// KindConfiguration is invalid caller-supplied configuration. Not retried.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindGeneration:
		return "generation"
	case KindInvalidOutputType:
		return "invalid_output_type"
	case KindExecution:
		return "execution"
	case KindDispatch:
		return "dispatch"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error carries a kind, an optional wrapped cause, and a captured trace.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Trace   string // formatted stack or interpreter trace, if captured
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a fault with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault wrapping err. A nil err yields a fault with no cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithTrace attaches a formatted trace to the fault and returns it.
func (e *Error) WithTrace(trace string) *Error {
	e.Trace = trace
	return e
}

// KindOf returns the kind of err, unwrapping as needed. Errors that are not
// faults report KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// TraceOf returns the captured trace of err, or err.Error() when no trace
// was recorded. Returns "" for nil.
func TraceOf(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Trace != "" {
		return fe.Trace
	}
	return err.Error()
}

// Retryable reports whether the recovery loop may attempt to recover from
// err. Dispatch and configuration faults are fatal for the current call.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindDispatch, KindConfiguration:
		return false
	default:
		return true
	}
}
