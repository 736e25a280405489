package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

type ErrorCode string

const (
	// CodeServiceUnavailable means the endpoint refused the connection or timed out.
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// CodeRequestFailed covers every other failure, including bad status and bad JSON.
	CodeRequestFailed ErrorCode = "REQUEST_FAILED"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("inference: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("inference: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// HTTPStatusError captures non-2xx responses from the endpoint.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Code returns the error code carried by err, or "" if err is not an *Error.
func Code(err error) ErrorCode {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// IsUnavailable reports whether err means the inference service could not be reached.
func IsUnavailable(err error) bool {
	return Code(err) == CodeServiceUnavailable
}

// classify wraps a transport error with the matching code.
func classify(err error, reason string) *Error {
	if unreachable(err) {
		return newError(CodeServiceUnavailable, "service unavailable", err)
	}
	return newError(CodeRequestFailed, reason, err)
}

func unreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
