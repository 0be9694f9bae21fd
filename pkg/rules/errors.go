package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRule is returned when a rule id is not in the registry.
var ErrUnknownRule = errors.New("unknown rule")

// LoadError represents a file that could not be read or parsed.
type LoadError struct {
	// FilePath is the path to the file that failed to load
	FilePath string

	// Message describes the error
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load rule file %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load rule file %q: %s", e.FilePath, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// RuleConfigError marks a rule as invalid. Invalid rules stay in the
// registry so that evaluations report them explicitly instead of skipping
// them silently.
type RuleConfigError struct {
	// RuleID is the offending rule, or the template ID for template errors
	RuleID string

	// Source is the file the definition came from
	Source string

	// Field is the offending field (e.g. "evaluation_type")
	Field string

	// Message describes the problem
	Message string
}

// Error implements the error interface.
func (e *RuleConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("rule config error")
	if e.RuleID != "" {
		sb.WriteString(fmt.Sprintf(" in %s", e.RuleID))
	}
	if e.Source != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", e.Source))
	}
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	return sb.String()
}

// ConfigErrors collects every RuleConfigError found while loading.
type ConfigErrors []*RuleConfigError

// Error implements the error interface.
func (e ConfigErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d rule config errors:\n", len(e)))
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}
