// Package errors defines the typed error taxonomy shared by the ledger,
// escrow and project services. Every failed mutation surfaces one of these;
// the HTTP layer maps them to status codes and callers can branch on the
// code without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the category of a service error.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeInsufficientFunds Code = "insufficient_funds"
	CodeInsufficientHeld  Code = "insufficient_held"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeInvalidState      Code = "invalid_state"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeConflict          Code = "storage_conflict"
	CodePartialFailure    Code = "partial_failure"
	CodeInternal          Code = "internal_error"
)

// Error is a categorised service error. Two Errors compare equal under
// errors.Is when their codes match, so sentinel comparisons work across
// wrapping.
type Error struct {
	Code    Code
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by code so errors.Is(err, errors.Sentinel(CodeNotFound)) holds
// for any not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

// Sentinel returns a bare error of the given code for errors.Is comparisons.
func Sentinel(code Code) *Error {
	return &Error{Code: code, Status: statusFor(code)}
}

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Status:  statusFor(code),
	}
}

func statusFor(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientFunds, CodeInsufficientHeld, CodeInvalidTransition,
		CodeInvalidState, CodeConflict:
		return http.StatusConflict
	case CodePartialFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Validation reports malformed or out-of-range input.
func Validation(format string, args ...interface{}) *Error {
	return newError(CodeValidation, format, args...)
}

// InsufficientFunds reports a balance too low for a debit or hold.
func InsufficientFunds(format string, args ...interface{}) *Error {
	return newError(CodeInsufficientFunds, format, args...)
}

// InsufficientHeld reports a held balance too low for a release or refund.
func InsufficientHeld(format string, args ...interface{}) *Error {
	return newError(CodeInsufficientHeld, format, args...)
}

// NotFound reports an unknown account, transaction, project or milestone.
func NotFound(format string, args ...interface{}) *Error {
	return newError(CodeNotFound, format, args...)
}

// InvalidTransition reports a project status move not in the transition table.
func InvalidTransition(format string, args ...interface{}) *Error {
	return newError(CodeInvalidTransition, format, args...)
}

// InvalidState reports an operation not permitted in the record's current
// state, such as releasing an already settled transaction.
func InvalidState(format string, args ...interface{}) *Error {
	return newError(CodeInvalidState, format, args...)
}

// Unauthorized reports a missing or invalid identity.
func Unauthorized(format string, args ...interface{}) *Error {
	return newError(CodeUnauthorized, format, args...)
}

// Forbidden reports an actor lacking rights for the action.
func Forbidden(format string, args ...interface{}) *Error {
	return newError(CodeForbidden, format, args...)
}

// Conflict reports an optimistic-lock failure. Callers should retry.
func Conflict(format string, args ...interface{}) *Error {
	return newError(CodeConflict, format, args...)
}

// PartialFailure reports a settlement whose second leg could not complete
// after the first committed. Operator-visible; requires reconciliation.
func PartialFailure(format string, args ...interface{}) *Error {
	return newError(CodePartialFailure, format, args...)
}

// Internal reports an unexpected system fault.
func Internal(format string, args ...interface{}) *Error {
	return newError(CodeInternal, format, args...)
}

// CodeOf extracts the code from err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	var se *Error
	if errors.As(err, &se) {
		if se.Status != 0 {
			return se.Status
		}
		return statusFor(se.Code)
	}
	return http.StatusInternalServerError
}
