package resilience

import (
	"errors"
	"net"
	"syscall"
)

// TransientError marks a failure that is safe to retry: a provider quota
// status, an HTTP 429/5xx, or a network timeout.
type TransientError struct {
	Err        error
	StatusCode int
	Status     string
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable. statusCode is the HTTP status (0
// if none); status is the provider status string, if any.
func NewTransientError(err error, statusCode int, status string) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode, Status: status}
}

// IsTransient reports whether err is a TransientError, a network timeout, or
// a reset/refused connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
