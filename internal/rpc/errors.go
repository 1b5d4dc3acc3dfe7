package rpc

import (
	"errors"
	"fmt"
)

// Domain errors for the rpc package.
var (
	// ErrNoCredentials is returned when a login is attempted without a
	// configured username and password. This is a hard failure and is
	// not retried.
	ErrNoCredentials = errors.New("rpc: no credentials configured")

	// ErrAuthFailure is returned when the backend rejects the login or
	// returns an unusable session token.
	ErrAuthFailure = errors.New("rpc: authentication failed")

	// ErrScriptNotFound is returned when a named backend script source
	// does not exist in the script directory.
	ErrScriptNotFound = errors.New("rpc: script not found")
)

// CallError is the one normalized error kind for transport-level failures.
// It carries the failing method name and wraps the underlying cause, so
// errors.Is/As see through it.
type CallError struct {
	Method string
	Err    error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("rpc: call %s failed: %v", e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error {
	return e.Err
}
