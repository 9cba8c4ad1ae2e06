// Package services provides the application layer over the builder,
// materializer and audition packages: named sessions, graph mutations by
// id, and standardized error types for the API surface.
package services

import (
	"errors"
	"fmt"

	"github.com/soundforge/soundforge/pkg/builder"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/materializer"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrSessionNameRequired = errors.New("session name is required")
	ErrInvalidEndpoint     = errors.New("invalid pin endpoint")
	ErrInvalidRequest      = errors.New("invalid request")

	// Not Found (404).
	ErrSessionNotFound = errors.New("session not found")
	ErrNodeNotFound    = errors.New("node not found in session")

	// Conflicts (409).
	ErrSessionNameTaken = errors.New("session name is already in use")

	// Preconditions (409/422).
	ErrNoTransientInstance = errors.New("session has no transient instance")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Session string // Session the operation addressed
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Session != "" {
		return fmt.Sprintf("%s (session %s): %v", e.Op, e.Session, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrSessionNameRequired) ||
		errors.Is(err, ErrInvalidEndpoint) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, builder.ErrUnknownNodeType) ||
		errors.Is(err, builder.ErrUnknownPin) ||
		errors.Is(err, builder.ErrUnknownGraphIO) ||
		errors.Is(err, materializer.ErrInvalidStoragePath)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, builder.ErrHandleInvalidated) ||
		errors.Is(err, gateway.ErrAssetNotFound) ||
		errors.Is(err, gateway.ErrInstanceNotFound) ||
		errors.Is(err, gateway.ErrSinkNotFound)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSessionNameTaken) ||
		errors.Is(err, ErrNoTransientInstance) ||
		errors.Is(err, builder.ErrInputAlreadyConnected) ||
		errors.Is(err, builder.ErrInputIsConnected) ||
		errors.Is(err, builder.ErrNotConnected) ||
		errors.Is(err, builder.ErrDuplicateName) ||
		errors.Is(err, builder.ErrNodeHasDependents) ||
		errors.Is(err, gateway.ErrStorageConflict) ||
		errors.Is(err, gateway.ErrNotATransientInstance)
}

// IsUnprocessableError checks if an error should map to HTTP 422.
func IsUnprocessableError(err error) bool {
	return errors.Is(err, builder.ErrTypeMismatch)
}

// IsUpstreamError checks if an error should map to HTTP 502/503.
func IsUpstreamError(err error) bool {
	return errors.Is(err, gateway.ErrUnavailable)
}
