package model

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeValidation  = "POST001"
	ErrCodeNotFound    = "POST002"
	ErrCodeConflict    = "POST003"
	ErrCodeStoreClosed = "POST004"
)

// Errors
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("post not found")
	ErrConflict    = errors.New("revision conflict")
	ErrStoreClosed = errors.New("document store is closed")
)

// PostError carries a stable code for the HTTP layer and unwraps to one
// of the sentinels above so errors.Is works across layers.
type PostError struct {
	Code    string
	Message string
	Err     error
}

func (e *PostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PostError) Unwrap() error {
	return e.Err
}

// ConflictError is returned when a write presents a revision that is no
// longer current.
type ConflictError struct {
	ID               string
	ExpectedRevision string
	CurrentRevision  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %s: expected %q, current %q", e.ID, e.ExpectedRevision, e.CurrentRevision)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Error constructors
func NewValidationError(err error) *PostError {
	return &PostError{
		Code:    ErrCodeValidation,
		Message: err.Error(),
		Err:     ErrValidation,
	}
}

func NewNotFoundError(id string) *PostError {
	return &PostError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("post %s not found", id),
		Err:     ErrNotFound,
	}
}

func NewConflictError(id, expected, current string) *ConflictError {
	return &ConflictError{
		ID:               id,
		ExpectedRevision: expected,
		CurrentRevision:  current,
	}
}

// CodeOf returns the error code for err, or "" when it is not a domain error.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrCodeValidation
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrConflict):
		return ErrCodeConflict
	case errors.Is(err, ErrStoreClosed):
		return ErrCodeStoreClosed
	}
	return ""
}
