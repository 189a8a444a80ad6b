// Package errors defines the sentinel errors and wrapping error type used
// across the index engine. The taxonomy follows three buckets: usage errors
// (structural misuse of the API), I/O errors (fatal, never retried), and data
// errors (corrupt persisted artifacts detected at open time).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrIndexExists is returned when a build targets a non-empty index
	// location. Build is create-once; the existing artifacts are left
	// untouched.
	ErrIndexExists = errors.New("index already exists at this location")
	// ErrIndexNotBuilt is returned when a query runs against an index whose
	// lexicon has never been written.
	ErrIndexNotBuilt = errors.New("index has not been built")
	// ErrCorruptIndex is returned when a persisted artifact fails validation
	// at open time.
	ErrCorruptIndex = errors.New("corrupt index artifact")
	// ErrInvalidInput is returned for malformed requests to the search
	// service.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSourceUnavailable is returned when a corpus source cannot be
	// reached.
	ErrSourceUnavailable = errors.New("corpus source unavailable")
	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal = errors.New("internal error")
)

// AppError pairs a sentinel with context and an HTTP status for the search
// service's responses.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel error with a status code and message.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the status the search service should return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotBuilt), errors.Is(err, ErrIndexExists):
		return http.StatusConflict
	case errors.Is(err, ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
