// Package bridgeerr defines the closed error-kind taxonomy shared by every
// orchestrator in the sync bridge. Driver-level failures are wrapped once,
// here, rather than swallowed or retried silently.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of failure categories. New kinds must be added
// here, not invented ad hoc at call sites.
type Kind string

const (
	KindValidation         Kind = "Validation"
	KindUnavailable        Kind = "Unavailable"
	KindNotInitialized     Kind = "NotInitialized"
	KindBusy               Kind = "Busy"
	KindConflictState      Kind = "ConflictState"
	KindDriftedSincePreview Kind = "DriftedSincePreview"
	KindUnexpectedOutput   Kind = "UnexpectedOutput"
	KindInvalidResolution  Kind = "InvalidResolutionJson"
	KindUnresolved         Kind = "Unresolved"
	KindTimeout            Kind = "Timeout"
	KindIO                 Kind = "IO"
	KindUnknown            Kind = "Unknown"
)

// Error is the single wrapped-error type used across the bridge. Message is
// the human-facing summary; Detail carries optional diagnostic context that
// is not meant for end users.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and message to an underlying cause, matching the
// teacher's fmt.Errorf("...: %w", err) wrapping style but keeping the kind
// machine-readable for orchestrators that need to branch on it.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail returns a copy of e with Detail set.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// Is supports errors.Is(err, bridgeerr.New(kind, "")) by comparing Kind only.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, else Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
