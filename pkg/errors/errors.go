package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by every layer. AppErrors wrap one of these so
// callers can branch with errors.Is regardless of the message text.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrGone           = errors.New("gone")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError is an error carrying a machine-readable code, a message that is safe
// to show to end users and the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`

	// cause is an optional second error exposed through Unwrap so both the
	// sentinel kind and the underlying failure can be matched.
	cause error
}

func (e *AppError) Error() string {
	switch {
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	case e.Err != nil && e.Err.Error() != e.Message:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the kind sentinel and, when present, the cause.
func (e *AppError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// WithCause returns a copy of e that also wraps cause.
func (e *AppError) WithCause(cause error) *AppError {
	cpy := *e
	cpy.cause = cause
	return &cpy
}

// New builds an AppError of an arbitrary kind.
func New(code, message string, status int, kind error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     kind,
	}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return New("NOT_FOUND", fmt.Sprintf("%s with id %s not found", resource, id), http.StatusNotFound, ErrNotFound)
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return New("INVALID_INPUT", message, http.StatusBadRequest, ErrInvalidInput)
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return New("CONFLICT", message, http.StatusConflict, ErrConflict)
}

// Gone creates a 410 error.
func Gone(message string) *AppError {
	return New("GONE", message, http.StatusGone, ErrGone)
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return New("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable, ErrServiceUnavail)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrGone):
		return http.StatusGone
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
