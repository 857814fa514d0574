package errors

import (
	"fmt"
	"net/http"

	crdb "github.com/cockroachdb/errors"
)

var (
	ErrMalformedIndex   = crdb.New("malformed index")
	ErrIndexNotLoaded   = crdb.New("index not loaded")
	ErrUnknownBook      = crdb.New("unknown book")
	ErrSuperseded       = crdb.New("query superseded")
	ErrContentNotFound  = crdb.New("page content not found")
	ErrInvalidInput     = crdb.New("invalid input")
	ErrRateLimited      = crdb.New("rate limit exceeded")
	ErrUnauthorized     = crdb.New("unauthorized")
	ErrCircuitOpen      = crdb.New("circuit breaker is open")
	ErrInternal         = crdb.New("internal error")
	ErrTimeout          = crdb.New("operation timed out")
	ErrSecretUnresolved = crdb.New("secret could not be resolved")
)

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

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrapf annotates err while keeping it matchable with Is.
func Wrapf(err error, format string, args ...any) error {
	return crdb.Wrapf(err, format, args...)
}

// Mark makes err match sentinel in Is checks, both this package's and the
// standard library's, without changing its message. err stays reachable
// through Unwrap.
func Mark(err, sentinel error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, mark: sentinel}
}

type markedError struct {
	err  error
	mark error
}

func (e *markedError) Error() string { return e.err.Error() }

func (e *markedError) Unwrap() error { return e.err }

func (e *markedError) Is(target error) bool { return target == e.mark }

func Is(err, target error) bool {
	return crdb.Is(err, target)
}

func As(err error, target any) bool {
	return crdb.As(err, target)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if crdb.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case crdb.Is(err, ErrUnknownBook), crdb.Is(err, ErrContentNotFound):
		return http.StatusNotFound
	case crdb.Is(err, ErrSuperseded):
		return http.StatusConflict
	case crdb.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case crdb.Is(err, ErrMalformedIndex):
		return http.StatusUnprocessableEntity
	case crdb.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case crdb.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case crdb.Is(err, ErrIndexNotLoaded), crdb.Is(err, ErrCircuitOpen), crdb.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
