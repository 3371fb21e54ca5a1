// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Configuration errors (100-199): Invalid parameters, unknown scenarios
//   - Order errors (200-299): Rejected order submissions and cancellations
//   - Scenario errors (300-399): Scenario schedule and override errors
//   - Simulation errors (400-499): Step loop and invariant errors
//   - Persistence errors (500-599): Checkpoint, history and export I/O errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidQuantity, "quantity must be positive")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeUnknownItem, "no item with id %s", itemID)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeCheckpointFailed, "failed to persist checkpoint", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeInsufficientFunds) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsOrderError reports whether the error is a local order rejection.
// Order rejections are logged and skipped; they never halt a run.
func IsOrderError(err error) bool {
	code := GetCode(err)

	return code >= 200 && code < 300
}

// InvariantBreachError carries the identifiers needed to replay and inspect
// a violated simulation invariant with the same seed.
type InvariantBreachError struct {
	Step    int64  // Step at which the breach was observed
	AgentID string // Agent whose state violated the invariant
	OrderID int64  // Order involved, 0 if none
	Message string // Human-readable description
}

// NewInvariantBreachError creates a new InvariantBreachError.
func NewInvariantBreachError(step int64, agentID string, orderID int64, message string) *InvariantBreachError {
	return &InvariantBreachError{
		Step:    step,
		AgentID: agentID,
		OrderID: orderID,
		Message: message,
	}
}

// Error implements the error interface.
func (e *InvariantBreachError) Error() string {
	return fmt.Sprintf("invariant breach at step %d (agent %s, order %d): %s", e.Step, e.AgentID, e.OrderID, e.Message)
}

// IsInvariantBreachError checks if an error is an InvariantBreachError.
// It uses errors.As to check the error chain.
func IsInvariantBreachError(err error) bool {
	var breachErr *InvariantBreachError

	return errors.As(err, &breachErr)
}
