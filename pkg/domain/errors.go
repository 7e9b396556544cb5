package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure an entity operation can return.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_failure"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindForbidden  ErrorKind = "forbidden"
	KindStorage    ErrorKind = "storage_failure"
)

// Sentinels matched with errors.Is against any *Error of the same kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrStorage    = &Error{Kind: KindStorage}
)

// Error is the typed failure returned by stores and entity operations.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Validationf builds a validation failure.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found failure.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a uniqueness failure.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a permission failure.
func Forbiddenf(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps an I/O or lock error. The message stays generic.
func StorageFailure(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Message: "could not save", Err: err}
}

// KindOf classifies err. Blocking rule results are validation failures and
// anything unclassified is treated as a storage failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	var violation RuleViolationError
	if errors.As(err, &violation) {
		return KindValidation
	}
	return KindStorage
}

// Classify converts err into a typed *Error, wrapping unclassified errors as
// storage failures for op.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	var violation RuleViolationError
	if errors.As(err, &violation) {
		return &Error{Kind: KindValidation, Op: op, Message: violation.Error(), Err: err}
	}
	return StorageFailure(op, err)
}

// HTTPStatus is the status code the transport shim maps a kind to.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
