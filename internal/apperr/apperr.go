// Package apperr holds the error kinds the classification core reports to callers.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError marks input rejected before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NotFoundError covers both missing ids and ids owned by another user.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ConflictError is returned when an entity is not in a state that allows the operation.
type ConflictError struct {
	Resource string
	ID       int64
	Status   string
}

func (e *ConflictError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s %d: conflict", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s %d is already %s", e.Resource, e.ID, e.Status)
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func NotFound(resource string, id int64) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func Conflict(resource string, id int64, status string) error {
	return &ConflictError{Resource: resource, ID: id, Status: status}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// Code classifies err for result envelopes and bulk item outcomes.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	default:
		return "internal"
	}
}
