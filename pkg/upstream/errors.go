package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the client.
var (
	// ErrMalformedResponse is returned when a 2xx response body is not valid JSON.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("upstream circuit breaker open")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx (and unexpected non-2xx) responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents calls that hit the client timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassCanceled represents calls abandoned by the caller.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassCircuitOpen represents calls rejected by the circuit breaker.
	ErrorClassCircuitOpen ErrorClass = "circuit_open"
)

// HTTPError is an upstream failure with its classification.
type HTTPError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or "" when err is not an *HTTPError.
func ClassOf(err error) ErrorClass {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Class
	}
	return ""
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// classifyTransportError maps an http.Client.Do error to an error class.
func classifyTransportError(ctx context.Context, err error) ErrorClass {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return ErrorClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}

// countsAsBreakerFailure reports whether err should trip the circuit breaker.
// Caller-side problems (4xx, cancellation) and bad bodies do not indicate an
// unhealthy upstream.
func countsAsBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	switch ClassOf(err) {
	case ErrorClassClient, ErrorClassCanceled:
		return false
	default:
		return true
	}
}
