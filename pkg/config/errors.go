package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry lookups.
var (
	ErrAgentNotFound       = errors.New("agent not found")
	ErrIntentNotFound      = errors.New("intent not found")
	ErrLLMProviderNotFound = errors.New("LLM provider not found")
)

// LoadError wraps a failure to read or parse a configuration file.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError creates a LoadError for the given file.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Section string
	Detail  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration in %s: %s", e.Section, e.Detail)
}

// NewValidationError creates a ValidationError.
func NewValidationError(section, detail string) *ValidationError {
	return &ValidationError{Section: section, Detail: detail}
}
