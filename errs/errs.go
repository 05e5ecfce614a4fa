package errs

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a governance error.
type Kind string

const (
	Validation    Kind = "validation"
	NotFound      Kind = "not_found"
	Duplicate     Kind = "duplicate"
	Qualification Kind = "qualification"
	Crypto        Kind = "crypto"
	State         Kind = "state"
	Storage       Kind = "storage"
)

// Reason narrows an error beyond its kind.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonTooEarly        Reason = "too_early"
	ReasonAlreadyResolved Reason = "already_resolved"
	ReasonInactive        Reason = "inactive"
	ReasonNotTriggered    Reason = "not_triggered"
)

// Error is the single error type returned by every public operation.
type Error struct {
	Kind   Kind
	Op     string
	Reason Reason
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != ReasonNone {
		msg += " (" + string(e.Reason) + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the operation unchanged.
func (e *Error) Retryable() bool { return e.Kind == Storage }

// New builds an error of the given kind.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// StateErr builds a State error carrying a reason.
func StateErr(op string, reason Reason, format string, args ...interface{}) *Error {
	return WithReason(State, op, reason, format, args...)
}

// WithReason builds an error of any kind narrowed by reason.
func WithReason(kind Kind, op string, reason Reason, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying failure. Storage failures keep a stack.
func Wrap(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	if kind == Storage {
		err = pkgerrors.WithStack(err)
	}
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the state reason of err.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
