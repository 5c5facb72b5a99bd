package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("too many requests")
)

// Error is a business error of a known kind with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

func NotFoundf(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

func Forbiddenf(format string, args ...interface{}) error {
	return newError(ErrForbidden, format, args...)
}

func InvalidStatef(format string, args ...interface{}) error {
	return newError(ErrInvalidState, format, args...)
}

func Conflictf(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

func Unauthorizedf(format string, args ...interface{}) error {
	return newError(ErrUnauthorized, format, args...)
}

func RateLimitedf(format string, args ...interface{}) error {
	return newError(ErrRateLimited, format, args...)
}

var kinds = []error{ErrValidation, ErrNotFound, ErrForbidden, ErrInvalidState, ErrConflict, ErrUnauthorized, ErrRateLimited}

// KindOf returns the known kind of err, or nil for internal errors.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Message returns the caller-facing message of a known error.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if kind := KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal error"
}
