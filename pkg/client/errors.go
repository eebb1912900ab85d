package client

import (
	"errors"
	"fmt"
)

// ErrServerUnreachable is returned when the server cannot be contacted.
// Use with errors.Is.
var ErrServerUnreachable = errors.New("server unreachable")

// Error is returned when the server answers with a non-2xx status.
type Error struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ratelog [HTTP_%d]: %v", e.StatusCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// ServerUnreachableError wraps the transport error of an unreachable server.
type ServerUnreachableError struct {
	Cause error
}

func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
