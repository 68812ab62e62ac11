package runconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the pipeline file was not found.
	ErrConfigNotFound = errors.New("pipeline configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates pipeline validation failed.
	ErrValidationFailed = errors.New("pipeline validation failed")

	// ErrStepNotFound indicates a step name was referenced but not declared.
	ErrStepNotFound = errors.New("step not found")

	// ErrLinkViolation indicates the 4-point-link rule was violated.
	ErrLinkViolation = errors.New("4-point link rule violation")

	// ErrMissingRequiredField indicates a required field is missing.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a field has an invalid value.
	ErrInvalidValue = errors.New("invalid field value")
)

// ValidationError wraps pipeline validation errors with context.
type ValidationError struct {
	Component string // step, api, processing, prompts, schemas, validation
	ID        string // step name or component identifier
	Field     string // field name (optional)
	Err       error
}

// Error returns a formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %q: field %q: %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Component, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a new validation error.
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{Component: component, ID: id, Field: field, Err: err}
}

// LoadError wraps configuration loading errors with file context.
type LoadError struct {
	File string
	Err  error
}

// Error returns a formatted error message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError creates a new load error.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
