package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

// ErrSubjectBusy is returned when a subject already has an evaluation in
// flight.
var ErrSubjectBusy = errors.New("subject already has an evaluation in progress")

// DataUnavailableError is the clinical library's error for a source that
// could not be read. Evaluations turn it into an inconclusive result.
type DataUnavailableError = clinical.DataUnavailableError

// RuleConfigError is the registry's error for an invalid rule.
type RuleConfigError = rules.RuleConfigError

// ReasoningServiceError reports a reasoning-service failure that persisted
// through the provider's retries.
type ReasoningServiceError struct {
	RuleID string
	Round  int
	Cause  error
}

// Error implements the error interface.
func (e *ReasoningServiceError) Error() string {
	return fmt.Sprintf("rule %s: reasoning service failed in round %d: %v", e.RuleID, e.Round, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ReasoningServiceError) Unwrap() error {
	return e.Cause
}

// MalformedOutputError reports a final answer that does not satisfy the
// template contract.
type MalformedOutputError struct {
	RuleID     string
	TemplateID string
	Problems   []string
}

// Error implements the error interface.
func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("rule %s: output violates template %s: %s",
		e.RuleID, e.TemplateID, strings.Join(e.Problems, "; "))
}

// RoundBudgetError reports an evaluation stopped by its round or tool-call
// budget.
type RoundBudgetError struct {
	RuleID    string
	Rounds    int
	ToolCalls int
	Limit     string
}

// Error implements the error interface.
func (e *RoundBudgetError) Error() string {
	return fmt.Sprintf("rule %s: %s exhausted after %d rounds and %d tool calls",
		e.RuleID, e.Limit, e.Rounds, e.ToolCalls)
}
