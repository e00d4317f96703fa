// Package syncerrors provides structured error handling for ledgersync with
// error categorization, rich context, and retryability detection.
//
// # Overview
//
// The syncerrors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//   - Retryability detection
//
// # Basic Usage
//
//	// Create a new error
//	err := syncerrors.New(syncerrors.ErrorTypeTimeout, "request timed out")
//
//	// Add context
//	err = err.WithDetail("resource", "faktura-vydana").
//	         WithDetail("attempt", 2)
//
//	// Wrap existing errors
//	if err := client.Get(ctx, url); err != nil {
//	    return syncerrors.Wrap(err, syncerrors.ErrorTypeConnection, "fetch failed").
//	        WithDetail("url", url)
//	}
//
// # Error Types
//
// The taxonomy follows how the retry executor treats each failure: timeout,
// connection, and rate_limit errors are retryable; http_client (4xx),
// authentication, config, data, validation, and internal errors are fatal
// and propagate immediately.
package syncerrors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrorType represents the category of error, used for retry decisions,
// monitoring, and user-facing failure messages.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data mapping/parsing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeTimeout represents request timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeRateLimit represents rate limit errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeHTTPClient represents HTTP 4xx responses; never retried
	ErrorTypeHTTPClient ErrorType = "http_client"
	// ErrorTypeAuthentication represents authentication errors
	ErrorTypeAuthentication ErrorType = "authentication"
)

// Error represents a structured error with context. The Type drives the
// retry executor's classification; Details carry debugging context such as
// the HTTP status code or the remote server's error message.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. This method can be
// chained for adding multiple details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStatus records the HTTP status code that produced this error.
func (e *Error) WithStatus(code int) *Error {
	return e.WithDetail("status_code", code)
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// FromStatus builds an error for an HTTP response status. Statuses in the
// 4xx range classify as http_client (401/403 as authentication) and are
// never retried; everything else classifies as connection and is retryable.
func FromStatus(code int, detail string) *Error {
	msg := fmt.Sprintf("server returned HTTP %d", code)
	if detail != "" {
		msg = fmt.Sprintf("server returned HTTP %d: %s", code, detail)
	}

	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return New(ErrorTypeAuthentication, msg).WithStatus(code)
	case code >= 400 && code < 500:
		return New(ErrorTypeHTTPClient, msg).WithStatus(code)
	default:
		return New(ErrorTypeConnection, msg).WithStatus(code)
	}
}

// IsRetryable returns true if the error is retryable based on its type.
// Timeout, connection, and rate limit errors are retryable; everything
// else, including any error that is not a structured Error, is fatal.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// HTTPStatus returns the HTTP status code recorded on the error, or 0 if
// the error carries none.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return 0
	}
	if code, ok := e.Details["status_code"].(int); ok {
		return code
	}
	return 0
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
