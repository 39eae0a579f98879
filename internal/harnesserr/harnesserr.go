// Package harnesserr defines the stable error taxonomy surfaced across the
// operation surface. Every error that should reach a coordinator as a typed
// failure (rather than a generic 500) is constructed here so handlers can
// type-switch once and fill a uniform JSON envelope.
package harnesserr

import (
	"errors"
	"fmt"
)

// Code is one of the stable error identifiers from the specification's
// external interface. Coordinators match on these strings, not on message
// text.
type Code string

const (
	CodeSlotsExhausted      Code = "SlotsExhausted"
	CodeSpawnInProgress     Code = "SpawnInProgress"
	CodeSessionNotFound     Code = "SessionNotFound"
	CodeSessionAlreadyEnded Code = "SessionAlreadyEnded"
	CodeSessionNotActive    Code = "SessionNotActive"
	CodeExecutionLimit      Code = "EXECUTION_LIMIT"
	CodeVerifyGate          Code = "VERIFY_GATE"
	CodePlanningLimit       Code = "PLANNING_LIMIT"
	CodeInvalidJSON         Code = "InvalidJSON"
	CodeInvalidResponseType Code = "InvalidResponseType"
	CodeMessageNotFound     Code = "MessageNotFound"
	CodeMessageExpired      Code = "MessageExpired"
	CodeMessageTimeout      Code = "MessageTimeout"
	CodeCheckpointMalformed Code = "CheckpointMalformed"
	CodeInvalidArgument     Code = "InvalidArgument"
)

// Error is the harness's single error type. Detail carries structured,
// JSON-serializable context (offending slot, pending phase, max allowed
// plan, ...) used to fill out operation-surface responses beyond the plain
// message string.
type Error struct {
	Code    Code
	Message string
	Detail  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches structured context and returns the same error for
// chaining at the call site.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any, 1)
	}
	e.Detail[key] = value
	return e
}

// Wrap builds an Error that preserves cause for errors.Is/errors.As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// As extracts a *Error from err, following the standard library convention.
func As(err error) (*Error, bool) {
	var herr *Error
	if errors.As(err, &herr) {
		return herr, true
	}
	return nil, false
}

// CodeOf returns the Code of err if it is (or wraps) a *Error, else "".
func CodeOf(err error) Code {
	if herr, ok := As(err); ok {
		return herr.Code
	}
	return ""
}
