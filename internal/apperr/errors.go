// Package apperr is the error taxonomy shared by every marketplace component.
// Errors carry a Kind (the category callers branch on) and a stable machine
// Code that is safe to return to API clients.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	KindNotFound                 Kind = "not_found"
	KindConflict                 Kind = "conflict"
	KindInvalidTransition        Kind = "invalid_transition"
	KindValidation               Kind = "validation_failed"
	KindInsufficientBalance      Kind = "insufficient_balance"
	KindInsufficientNotice       Kind = "insufficient_notice"
	KindForbidden                Kind = "forbidden"
	KindInvalidState             Kind = "invalid_state"
	KindMaxRetriesExceeded       Kind = "max_retries_exceeded"
	KindLedgerInvariantViolation Kind = "ledger_invariant_violation"
	KindGateway                  Kind = "gateway_error"
	KindInternal                 Kind = "internal"
)

// Sentinels for errors.Is checks. They match any *Error of the same Kind.
var (
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrConflict                 = &Error{Kind: KindConflict}
	ErrInvalidTransition        = &Error{Kind: KindInvalidTransition}
	ErrValidation               = &Error{Kind: KindValidation}
	ErrInsufficientBalance      = &Error{Kind: KindInsufficientBalance}
	ErrInsufficientNotice       = &Error{Kind: KindInsufficientNotice}
	ErrForbidden                = &Error{Kind: KindForbidden}
	ErrInvalidState             = &Error{Kind: KindInvalidState}
	ErrMaxRetriesExceeded       = &Error{Kind: KindMaxRetriesExceeded}
	ErrLedgerInvariantViolation = &Error{Kind: KindLedgerInvariantViolation}
	ErrGateway                  = &Error{Kind: KindGateway}
)

// Error is a categorized application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind, and coded targets by Kind and Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func newError(kind Kind, code, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotFound(code, format string, args ...any) *Error {
	return newError(KindNotFound, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}

func InvalidTransition(code, format string, args ...any) *Error {
	return newError(KindInvalidTransition, code, format, args...)
}

func Validation(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

func InsufficientBalance(code, format string, args ...any) *Error {
	return newError(KindInsufficientBalance, code, format, args...)
}

func InsufficientNotice(code, format string, args ...any) *Error {
	return newError(KindInsufficientNotice, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return newError(KindForbidden, code, format, args...)
}

func InvalidState(code, format string, args ...any) *Error {
	return newError(KindInvalidState, code, format, args...)
}

func MaxRetriesExceeded(code, format string, args ...any) *Error {
	return newError(KindMaxRetriesExceeded, code, format, args...)
}

func LedgerInvariantViolation(code, format string, args ...any) *Error {
	return newError(KindLedgerInvariantViolation, code, format, args...)
}

// Gateway wraps a payment gateway failure.
func Gateway(code string, err error) *Error {
	return &Error{Kind: KindGateway, Code: code, Message: "payment gateway request failed", Err: err}
}

// KindOf returns the Kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the machine code of the first *Error in the chain.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Code != "" {
			return appErr.Code
		}
		return string(appErr.Kind)
	}
	return string(KindInternal)
}
