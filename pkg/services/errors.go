// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid workflow status")
	ErrEmptyOwnerID     = errors.New("owner ID cannot be empty")
	ErrWorkflowNil      = errors.New("workflow cannot be nil")
	ErrInvalidEvent     = errors.New("invalid event")

	// Definition errors (422 Unprocessable Entity).
	ErrWorkflowInvalid = errors.New("workflow definition is invalid")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyArchived    = errors.New("cannot modify archived workflow")
	ErrInvalidStatusTransition = errors.New("invalid workflow status transition")
	ErrRunNotCancellable       = errors.New("run cannot be cancelled")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string   // Operation name
	Code    string   // Error code for API responses
	Message string   // Human-readable message
	Issues  []string // Definition issues, set with ErrWorkflowInvalid
	Err     error    // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrInvalidEvent)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyArchived) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrRunNotCancellable)
}

// InvalidWorkflowIssues returns the definition issues carried by err, if it is an
// ErrWorkflowInvalid error.
func InvalidWorkflowIssues(err error) ([]string, bool) {
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || !errors.Is(serviceErr.Err, ErrWorkflowInvalid) {
		return nil, false
	}

	return serviceErr.Issues, true
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInvalidWorkflowError reports the issues that keep a workflow from being activated.
func NewInvalidWorkflowError(op string, issues []string) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    "INVALID_WORKFLOW",
		Message: fmt.Sprintf("workflow has %d issue(s)", len(issues)),
		Issues:  issues,
		Err:     ErrWorkflowInvalid,
	}
}
