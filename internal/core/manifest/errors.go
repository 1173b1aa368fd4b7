// Package manifest contains pure functions for parsing the declared-service
// manifest (a Docker Compose file) into ServiceDescriptors.
// This is part of the Functional Core - all functions are pure with no I/O.
package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEmptyInput = errors.New("service manifest is empty")

	ErrInvalidYAML = errors.New("invalid YAML syntax")

	ErrNoServices = errors.New("manifest must define at least one service")

	ErrServiceNoImage     = errors.New("service must have image or build")
	ErrUnknownDependency  = errors.New("service depends on an undeclared service")
	ErrCircularDependency = errors.New("circular dependency detected")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "services.web.depends_on"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
