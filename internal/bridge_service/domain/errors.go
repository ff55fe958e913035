package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested instance, rule or key was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict indicates duplicate provisioning of a live instance id.
	ErrConflict = errors.New("instance already provisioned")
	// ErrNotReady indicates a send was attempted while the session is not connected.
	ErrNotReady = errors.New("instance not connected")
	// ErrUnauthorized indicates a missing or invalid API key.
	ErrUnauthorized = errors.New("invalid or missing API key")
	// ErrValidation indicates a malformed rule or instance configuration.
	ErrValidation = errors.New("validation failed")
)

// TransportError wraps an opaque failure from the underlying connection
// or the cloud HTTP call.
type TransportError struct {
	Provider string
	Status   string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("transport %s failed (%s): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
