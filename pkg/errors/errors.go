package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it through errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return t.Code == e.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "key not found")

	// Inference backend.
	ErrServiceUnavailable = New("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "inference service unavailable")
	ErrQuotaExhausted     = New("QUOTA_EXHAUSTED", http.StatusTooManyRequests, "inference quota exhausted")
	ErrMalformedResponse  = New("MALFORMED_RESPONSE", http.StatusBadGateway, "inference returned a malformed response")

	// Calendar providers.
	ErrAuthExpired        = New("AUTH_EXPIRED", http.StatusUnauthorized, "provider authorization expired")
	ErrRateLimited        = New("RATE_LIMITED", http.StatusTooManyRequests, "provider rate limit reached")
	ErrValidationRejected = New("VALIDATION_REJECTED", http.StatusUnprocessableEntity, "provider rejected the request")
	ErrNetwork            = New("NETWORK_ERROR", http.StatusBadGateway, "provider unreachable")
	ErrProvider           = New("PROVIDER_ERROR", http.StatusBadGateway, "provider error")

	// User input and target resolution.
	ErrInvalidTime      = New("INVALID_TIME", http.StatusBadRequest, "could not understand the time")
	ErrInvalidDuration  = New("INVALID_DURATION", http.StatusBadRequest, "duration must be a whole number of minutes between 1 and 1440")
	ErrNoMatch          = New("NO_MATCH", http.StatusNotFound, "no matching events found")
	ErrAmbiguousTarget  = New("AMBIGUOUS_TARGET", http.StatusConflict, "more than one event matches")
	ErrScopeRequired    = New("SCOPE_REQUIRED", http.StatusConflict, "recurring event requires a scope")
	ErrTimeUnconfirmed  = New("TIME_UNCONFIRMED", http.StatusConflict, "event time has not been confirmed")

	// Ledger.
	ErrNothingToUndo  = New("NOTHING_TO_UNDO", http.StatusConflict, "nothing to undo")
	ErrNothingToRedo  = New("NOTHING_TO_REDO", http.StatusConflict, "nothing to redo")
	ErrPartialFailure = New("PARTIAL_FAILURE", http.StatusBadGateway, "some provider operations failed")
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

// Code extracts the application error code, or an empty string for foreign errors.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
