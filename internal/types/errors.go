package types

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories surfaced to callers.
// Errors are the only way a component signals failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindPolicy     Kind = "policy"
	KindDependency Kind = "dependency"
	KindInternal   Kind = "internal"
)

// Error carries a kind and a human-readable message. Dependency and
// internal errors are retryable; the rest are not.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether retrying the same call may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindDependency || e.Kind == KindInternal
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func Policyf(format string, args ...any) *Error {
	return newError(KindPolicy, format, args...)
}

func Dependencyf(format string, args ...any) *Error {
	return newError(KindDependency, format, args...)
}

func Internalf(format string, args ...any) *Error {
	return newError(KindInternal, format, args...)
}

// KindOf classifies an arbitrary error. Wrapped *Error values keep their
// kind; anything else is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether err is safe to retry.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}
