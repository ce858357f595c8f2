package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Class is the coarse outcome used by the crawl to decide what happens next.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota
	// ClassTransient failures are retried with backoff and, once exhausted,
	// recorded against the artwork without stopping the crawl.
	ClassTransient
	// ClassNotFound marks an artwork that vanished since it was listed.
	ClassNotFound
	// ClassFatal aborts the whole crawl.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassNotFound:
		return "not_found"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Class projects the error type onto the crawl taxonomy.
func (e *Error) Class() Class {
	return ClassOf(e.Type)
}

// New builds a typed error.
func New(t ErrorType, code int, msg string) *Error {
	return &Error{Type: t, Code: code, Message: msg}
}

// Wrap builds a typed error around an underlying cause.
func Wrap(t ErrorType, code int, msg string, err error) *Error {
	return &Error{Type: t, Code: code, Message: msg, Err: err}
}

// ClassOf maps an error type to its class.
func ClassOf(t ErrorType) Class {
	switch t {
	case ErrorTypeAuth:
		return ClassFatal
	case ErrorTypeNotFound:
		return ClassNotFound
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeParsing:
		return ClassTransient
	case ErrorTypeStorage:
		// A full or read-only disk will fail every following write too.
		return ClassFatal
	default:
		return ClassTransient
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	return ClassOf(errorType) == ClassTransient
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatus converts a non-2xx HTTP status into a typed error.
func FromStatus(statusCode int) *Error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return New(ErrorTypeAuth, statusCode, "session cookie rejected, re-acquire the cookie from a logged-in browser")
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return New(ErrorTypeNotFound, statusCode, "resource not found")
	case statusCode == http.StatusTooManyRequests:
		return New(ErrorTypeRateLimit, statusCode, "rate limit exceeded")
	case statusCode >= 500:
		return New(ErrorTypeServerError, statusCode, "server error")
	case statusCode == http.StatusRequestTimeout:
		return New(ErrorTypeNetwork, statusCode, "request timeout")
	default:
		return New(ErrorTypeUnknown, statusCode, fmt.Sprintf("unexpected status code: %d", statusCode))
	}
}

// Classify inspects any error and returns its class. Context cancellation is
// reported as ClassNone so callers never retry or record it as a failure.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) {
		return ClassNone
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Class()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}

// IsFatal reports whether err must abort the crawl.
func IsFatal(err error) bool {
	return Classify(err) == ClassFatal
}

// IsNotFound reports whether err means the artwork no longer exists.
func IsNotFound(err error) bool {
	return Classify(err) == ClassNotFound
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

// TypeOf returns the error type carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	if err != nil && Classify(err) == ClassTransient {
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}
