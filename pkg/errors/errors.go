package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category groups codes the way callers branch on them.
const (
	CategoryValidation = "VALIDATION"
	CategoryConflict   = "CONFLICT"
	CategoryState      = "STATE"
	CategoryNotFound   = "NOT_FOUND"
	CategoryTimeout    = "TIMEOUT"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code     string `json:"code"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Err      error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on code so errors.Is works against the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func newCategorised(code, category string, status int, message string) *Error {
	return &Error{Code: code, Category: category, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound        = newCategorised("NOT_FOUND", CategoryNotFound, http.StatusNotFound, "resource not found")
	ErrForbidden       = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized    = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation      = newCategorised("VALIDATION_ERROR", CategoryValidation, http.StatusBadRequest, "validation failed")
	ErrInternal        = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrTooManyRequests = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")

	ErrPast            = newCategorised("PAST", CategoryValidation, http.StatusUnprocessableEntity, "requested time is in the past")
	ErrTooSoon         = newCategorised("TOO_SOON", CategoryValidation, http.StatusUnprocessableEntity, "requested time is inside the minimum notice period")
	ErrOutOfRange      = newCategorised("OUT_OF_RANGE", CategoryValidation, http.StatusUnprocessableEntity, "requested date is outside the bookable range")
	ErrSlotUnavailable = newCategorised("SLOT_UNAVAILABLE", CategoryValidation, http.StatusUnprocessableEntity, "requested time is not an offered slot")

	ErrConflict         = newCategorised("CONFLICT", CategoryConflict, http.StatusConflict, "requested time is no longer available")
	ErrAlreadyCancelled = newCategorised("ALREADY_CANCELLED", CategoryState, http.StatusConflict, "booking is already cancelled")
	ErrInvalidState     = newCategorised("INVALID_STATE", CategoryState, http.StatusConflict, "booking cannot change from its current status")
	ErrTimeout          = newCategorised("TIMEOUT", CategoryTimeout, http.StatusGatewayTimeout, "operation timed out")

	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err normalises to the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
