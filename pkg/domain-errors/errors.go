// Package domainerrors carries typed error codes from services to transports.
//
// Services return *Error values built with New or Wrap; transports translate the
// code into a status without inspecting messages. Stores never return these
// directly, they return pkg/platform/sentinel facts that services translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error kind. Codes are surfaced verbatim to callers.
type Code string

const (
	CodeInvalidInput         Code = "invalid_input"
	CodeNotFound             Code = "not_found"
	CodeUnresolvedIdentity   Code = "unresolved_identity"
	CodeSelfAccessDenied     Code = "self_access_denied"
	CodeForbidden            Code = "forbidden"
	CodeDuplicateRequest     Code = "duplicate_request"
	CodeNotPending           Code = "not_pending"
	CodeNotApproved          Code = "not_approved"
	CodeSubstrateUnavailable Code = "substrate_unavailable"
	CodeUnauthorized         Code = "unauthorized"
	CodeIdempotencyConflict  Code = "idempotency_conflict"
	CodeTimeout              Code = "timeout"
	CodeInternal             Code = "internal_error"
)

// Class groups codes by what the caller should do about them.
type Class string

const (
	ClassMalformed  Class = "malformed_request"
	ClassMissing    Class = "missing_data"
	ClassNotAllowed Class = "not_allowed"
	ClassBadState   Class = "bad_state"
	ClassTransient  Class = "transient"
	ClassInternal   Class = "internal"
)

var codeClasses = map[Code]Class{
	CodeInvalidInput:         ClassMalformed,
	CodeNotFound:             ClassMissing,
	CodeUnresolvedIdentity:   ClassMissing,
	CodeSelfAccessDenied:     ClassNotAllowed,
	CodeForbidden:            ClassNotAllowed,
	CodeUnauthorized:         ClassNotAllowed,
	CodeDuplicateRequest:     ClassBadState,
	CodeNotPending:           ClassBadState,
	CodeNotApproved:          ClassBadState,
	CodeIdempotencyConflict:  ClassBadState,
	CodeSubstrateUnavailable: ClassTransient,
	CodeTimeout:              ClassTransient,
	CodeInternal:             ClassInternal,
}

// ClassOf returns the class of a code. Unknown codes are internal.
func ClassOf(code Code) Class {
	if c, ok := codeClasses[code]; ok {
		return c
	}
	return ClassInternal
}

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause. The cause stays
// reachable through errors.Is/errors.As.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost coded error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
