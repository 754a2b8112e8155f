package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error type constants for classification and matching
const (
	// ErrorTypeAll acts as a wildcard that matches any error except fatal errors
	ErrorTypeAll = "all"

	// ErrorTypeValidation is returned for turns rejected before any state
	// changes: no thread, empty input, nothing to resume.
	ErrorTypeValidation = "validation"

	// ErrorTypeRecursionExceeded means a turn visited more nodes than allowed.
	ErrorTypeRecursionExceeded = "recursion_exceeded"

	// ErrorTypeStorageFailure wraps registry and checkpoint I/O failures.
	ErrorTypeStorageFailure = "storage_failure"

	// ErrorTypeCollaboratorFailure is the default for errors raised by agents,
	// the supervisor or the classifier.
	ErrorTypeCollaboratorFailure = "collaborator_failure"

	// ErrorTypeTurnInFlight rejects a turn on a thread that is already running.
	ErrorTypeTurnInFlight = "turn_in_flight"

	// ErrorTypeTimeout matches a timeout context canceled error
	ErrorTypeTimeout = "timeout"

	// ErrorTypeFatal is only matched by itself.
	ErrorTypeFatal = "fatal_error"
)

var (
	ErrNoActiveThread  = NewWorkflowError(ErrorTypeValidation, "no active thread")
	ErrEmptyInput      = NewWorkflowError(ErrorTypeValidation, "input is empty")
	ErrNothingToResume = NewWorkflowError(ErrorTypeValidation, "thread is not awaiting input")
	ErrTurnInFlight    = NewWorkflowError(ErrorTypeTurnInFlight, "a turn is already running on this thread")
	ErrLastThread      = NewWorkflowError(ErrorTypeValidation, "cannot delete the last thread")
	ErrThreadNotFound  = NewWorkflowError(ErrorTypeValidation, "thread not found")
)

// WorkflowError represents a structured error with classification
// It supports Go's error wrapping patterns with Unwrap() method
type WorkflowError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
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

// wrapError classifies err under errorType unless it already carries a type.
func wrapError(errorType string, err error, details any) *WorkflowError {
	var workflowError *WorkflowError
	if errors.As(err, &workflowError) {
		return workflowError
	}
	return &WorkflowError{
		Type:    errorType,
		Cause:   err.Error(),
		Details: details,
		Wrapped: err,
	}
}

// ClassifyError attempts to classify a regular error into a WorkflowError
func ClassifyError(err error) *WorkflowError {
	var workflowError *WorkflowError
	if errors.As(err, &workflowError) {
		return workflowError
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &WorkflowError{
			Type:    ErrorTypeTimeout,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	return &WorkflowError{
		Type:    ErrorTypeCollaboratorFailure,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type pattern
func MatchesErrorType(err error, errorType string) bool {
	wErr := ClassifyError(err)
	if wErr.Type == ErrorTypeFatal {
		return errorType == ErrorTypeFatal
	}
	switch errorType {
	case ErrorTypeAll:
		return true
	default:
		return wErr.Type == errorType
	}
}

// Is matches two workflow errors of the same type and cause, so sentinels
// survive being copied or re-wrapped.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Cause == t.Cause
}

// interruptTerms are lowercase fragments of collaborator errors that mean
// "stop and ask the human" rather than failure.
var interruptTerms = []string{"interrupt", "interrupted", "human input required"}

// IsInterruptError reports whether err asks for human input.
func IsInterruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, term := range interruptTerms {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}
