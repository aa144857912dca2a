package apperr

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"
)

var captureStacks atomic.Bool

// EnableStacks turns stack capture on or off for errors created afterwards.
// Production deployments leave it off.
func EnableStacks(on bool) {
	captureStacks.Store(on)
}

// AppError is the structured failure value crossing every component boundary.
// Message is always the fixed user-facing text for Code; Details carries the
// technical explanation and never reaches the client.
type AppError struct {
	Code      Code
	Message   string
	Details   string
	Status    int
	Retryable bool
	Timestamp time.Time
	Stack     string
	Err       error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Details)
	}
	return string(e.Code)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code so callers can write
// errors.Is(err, apperr.New(apperr.CodeDataNotFound)).
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns e with its technical details replaced.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// New builds an AppError for code.
func New(code Code) *AppError {
	e := &AppError{
		Code:      code,
		Message:   code.Message(),
		Status:    code.Status(),
		Retryable: code.Retryable(),
		Timestamp: time.Now().UTC(),
	}
	if captureStacks.Load() {
		e.Stack = string(debug.Stack())
	}
	return e
}

// Wrap builds an AppError for code around cause. When details is empty the
// cause's text is used.
func Wrap(cause error, code Code, details string) *AppError {
	e := New(code)
	e.Err = cause
	if details == "" && cause != nil {
		details = cause.Error()
	}
	e.Details = details
	return e
}

// CodeOf returns the code carried by err, or UNKNOWN_ERROR.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
