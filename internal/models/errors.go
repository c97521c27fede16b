package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every component.
var (
	// ErrNotFound marks an absent or expired namespace, session, personalized bank or question.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks a message that has no transition from the session's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrDimensionMismatch marks a vector whose length differs from the deployment dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidArgument marks a malformed request.
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError names the missing entity and wraps ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound returns a NotFoundError for kind/id.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// DimensionError reports the expected and actual vector length.
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Got, e.Expected)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// CollaboratorError wraps a failed or timed-out call to an external collaborator
// (embedding gateway, LLM, extractor, speech service).
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry. Collaborator failures are transient by contract.
func (e *CollaboratorError) Retryable() bool { return true }

// NewCollaboratorError wraps err for the named collaborator and operation.
func NewCollaboratorError(collaborator, op string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
}

// IsCollaboratorError reports whether err is (or wraps) a CollaboratorError.
func IsCollaboratorError(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
