package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindUnauthenticated
	KindUnauthorized
	KindInsufficientStock
	KindNotAvailable
	KindInvalidState
	KindDuplicateStage
	KindNotInProgress
	KindStorage
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindValidation:        "validation_error",
	KindNotFound:          "not_found",
	KindUnauthenticated:   "unauthenticated",
	KindUnauthorized:      "unauthorized",
	KindInsufficientStock: "insufficient_stock",
	KindNotAvailable:      "not_available",
	KindInvalidState:      "invalid_state",
	KindDuplicateStage:    "duplicate_stage",
	KindNotInProgress:     "not_in_progress",
	KindStorage:           "storage_error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Error is the single error type crossing the service boundary. Message is
// safe to show to the caller; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the wire code for the error kind.
func (e *Error) Code() string { return e.Kind.String() }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

func NotFound(entity string) *Error { return newf(KindNotFound, "%s not found", entity) }

func Unauthenticated(msg string) *Error { return newf(KindUnauthenticated, "%s", msg) }

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

func InsufficientStock(available, requested fmt.Stringer) *Error {
	return newf(KindInsufficientStock, "insufficient stock: have %s, need %s", available, requested)
}

func NotAvailable(format string, args ...any) *Error { return newf(KindNotAvailable, format, args...) }

func InvalidState(format string, args ...any) *Error { return newf(KindInvalidState, format, args...) }

func DuplicateStage(stage string) *Error {
	return newf(KindDuplicateStage, "production stage %s already exists for this order", stage)
}

func NotInProgress() *Error { return newf(KindNotInProgress, "production stage is not in progress") }

// Storage wraps a transaction or connectivity failure. It is the only kind
// that warrants a retry by the caller.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf reports the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, k Kind) bool { return KindOf(err) == k }

// HTTPStatus maps an error to the status code the REST boundary returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	case KindInsufficientStock, KindNotAvailable, KindInvalidState, KindDuplicateStage, KindNotInProgress:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Expected reports whether err is a user-facing, locally recoverable error
// that must not be logged as a system failure.
func Expected(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindUnknown:
		return false
	}
	return true
}

// PublicMessage returns the message safe to send over the wire.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindStorage {
		return e.Message
	}
	return "unexpected failure, retry later"
}
