package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Runner error codes. Structural codes (routing, step limit, state machine,
// checkpoint lookup) always abort a run; NODE_EXECUTION_FAILED and
// NODE_TIMEOUT are offered to the middleware error pipeline first.
const (
	ErrInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	ErrNoRouteFound           ErrorCode = "NO_ROUTE_FOUND"
	ErrStepLimitExceeded      ErrorCode = "STEP_LIMIT_EXCEEDED"
	ErrNodeTimeout            ErrorCode = "NODE_TIMEOUT"
	ErrNodeExecutionFailed    ErrorCode = "NODE_EXECUTION_FAILED"
	ErrCheckpointNotFound     ErrorCode = "CHECKPOINT_NOT_FOUND"
	ErrInvalidHumanResponse   ErrorCode = "INVALID_HUMAN_RESPONSE"
	ErrCancelled              ErrorCode = "CANCELLED"
)

// Graph construction error codes.
const (
	ErrInvalidGraph ErrorCode = "INVALID_GRAPH"
	ErrInvalidNode  ErrorCode = "INVALID_NODE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.NodeID != "" && e.Cause != nil:
		return fmt.Sprintf("[%s] node %s: %s: %v", e.Code, e.NodeID, e.Message, e.Cause)
	case e.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNodeID attributes the error to a graph node.
func (e *Error) WithNodeID(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
