package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error type constants for classification and matching
const (
	// ErrorTypeValidation is used for malformed definitions and missing
	// required inputs. These are returned before any state exists.
	ErrorTypeValidation = "validation"

	// ErrorTypeGraph matches traversal errors such as a node with no
	// matching outgoing edge or an unknown node type.
	ErrorTypeGraph = "graph"

	// ErrorTypeIterationLimit indicates the per-execution iteration cap
	// was exceeded.
	ErrorTypeIterationLimit = "iteration_limit"

	// ErrorTypeExecution is used for node failures that are neither graph
	// nor external call errors, e.g. a transform on a non-numeric value.
	ErrorTypeExecution = "execution"

	// ErrorTypeExternalCall matches failures of completion or tool calls.
	ErrorTypeExternalCall = "external_call"

	// ErrorTypeStaleCheckpoint is returned when a resume request does not
	// match the pending checkpoint.
	ErrorTypeStaleCheckpoint = "stale_checkpoint"

	// ErrorTypeTimeout matches a timeout context canceled error
	ErrorTypeTimeout = "timeout"

	// ErrorTypeCancelled indicates the execution was cancelled while a
	// node was running.
	ErrorTypeCancelled = "cancelled"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNoMatchingEdge        = errors.New("no matching edge")
	ErrUnknownNodeType       = errors.New("unknown node type")
	ErrDanglingEdge          = errors.New("edge references unknown node")
	ErrCycleDetected         = errors.New("cycle detected in workflow that does not allow cycles")
	ErrMaxIterationsExceeded = errors.New("max iterations exceeded")
	ErrExternalCall          = errors.New("external call failed")
	ErrStaleCheckpoint       = errors.New("stale checkpoint")
	ErrInvalidResponse       = errors.New("response does not match any checkpoint option")
	ErrNotPaused             = errors.New("execution is not paused")
	ErrExecutionNotFound     = errors.New("execution not found")
	ErrWorkflowRequired      = errors.New("workflow definition is required")
)

// WorkflowError represents a structured error with classification
// It supports Go's error wrapping patterns with Unwrap() method
type WorkflowError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	NodeID  string `json:"node_id,omitempty"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"` // Original error being wrapped
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %q: %s", e.Type, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for Go's errors.Is and errors.As
func (e *WorkflowError) Unwrap() error {
	return e.Wrapped
}

// NewWorkflowError creates a new WorkflowError with the specified type and cause.
func NewWorkflowError(errorType, cause string) *WorkflowError {
	return &WorkflowError{
		Type:  errorType,
		Cause: cause,
	}
}

// newNodeError wraps err as a WorkflowError of the given type attributed to a node.
func newNodeError(errorType, nodeID string, err error) *WorkflowError {
	return &WorkflowError{
		Type:    errorType,
		Cause:   err.Error(),
		NodeID:  nodeID,
		Wrapped: err,
	}
}

// validationError builds a validation error that still matches ErrValidation.
func validationError(format string, args ...any) *WorkflowError {
	err := fmt.Errorf(format, args...)
	return &WorkflowError{
		Type:    ErrorTypeValidation,
		Cause:   err.Error(),
		Wrapped: errors.Join(ErrValidation, err),
	}
}

// ClassifyError attempts to classify a regular error into a WorkflowError
func ClassifyError(err error) *WorkflowError {
	var workflowError *WorkflowError
	if errors.As(err, &workflowError) {
		return workflowError
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &WorkflowError{Type: ErrorTypeCancelled, Cause: err.Error(), Wrapped: err}
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return &WorkflowError{Type: ErrorTypeTimeout, Cause: err.Error(), Wrapped: err}
	case errors.Is(err, ErrMaxIterationsExceeded):
		return &WorkflowError{Type: ErrorTypeIterationLimit, Cause: err.Error(), Wrapped: err}
	case errors.Is(err, ErrNoMatchingEdge), errors.Is(err, ErrUnknownNodeType), errors.Is(err, ErrDanglingEdge):
		return &WorkflowError{Type: ErrorTypeGraph, Cause: err.Error(), Wrapped: err}
	case errors.Is(err, ErrStaleCheckpoint):
		return &WorkflowError{Type: ErrorTypeStaleCheckpoint, Cause: err.Error(), Wrapped: err}
	case errors.Is(err, ErrValidation):
		return &WorkflowError{Type: ErrorTypeValidation, Cause: err.Error(), Wrapped: err}
	}
	// Default to an external call error; only completions and tools
	// produce errors the engine does not classify itself.
	return &WorkflowError{
		Type:    ErrorTypeExternalCall,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type
func MatchesErrorType(err error, errorType string) bool {
	return ClassifyError(err).Type == errorType
}
