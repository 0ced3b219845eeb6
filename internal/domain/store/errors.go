package store

import (
	"errors"
	"fmt"
)

// Kind classifies a failure reported by the care core.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInvalidState    Kind = "invalid_state"
	KindInvalidSchedule Kind = "invalid_schedule"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Error is the typed failure returned synchronously by the store and the
// services built on it.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match an *Error against its kind sentinel.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrInvalidState:
		return e.Kind == KindInvalidState
	case ErrInvalidSchedule:
		return e.Kind == KindInvalidSchedule
	}
	return false
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf reports malformed or missing input.
func Validationf(format string, args ...interface{}) error {
	return newError(KindValidation, format, args...)
}

// NotFoundf reports a reference to an unknown entity.
func NotFoundf(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

// Conflictf reports an occupied slot.
func Conflictf(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

// InvalidStatef reports a state machine transition that is not permitted.
func InvalidStatef(format string, args ...interface{}) error {
	return newError(KindInvalidState, format, args...)
}

// InvalidSchedulef reports a date/time policy violation.
func InvalidSchedulef(format string, args ...interface{}) error {
	return newError(KindInvalidSchedule, format, args...)
}

// KindOf returns the kind of err, or "" when err is not a care core error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
