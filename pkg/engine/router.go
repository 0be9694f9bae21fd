package engine

import (
	"fmt"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

// Route is the evaluator selected for a (rule, subject) pair.
type Route string

const (
	RouteDeterministic Route = "deterministic"
	RouteLLMWithTools  Route = "llm_with_tools"
	RouteNotApplicable Route = "not_applicable"
)

// PhaseOf derives a subject's study phase from their status: "Screening"
// is screening, a randomization date means post_randomization, and anything
// else is baseline.
func PhaseOf(s *clinical.Subject) rules.Phase {
	switch {
	case s == nil:
		return rules.PhaseBaseline
	case s.Screening():
		return rules.PhaseScreening
	case s.Randomized():
		return rules.PhasePostRandomization
	default:
		return rules.PhaseBaseline
	}
}

// RouteRule selects the evaluator for rule in the given phase. The rule's
// evaluation_type is the only routing key; phase applicability is checked
// first. An unknown evaluation_type is an error and is never defaulted.
func RouteRule(rule *rules.Rule, phase rules.Phase) (Route, string, error) {
	if !rule.Active() {
		return RouteNotApplicable, "rule inactive", nil
	}
	if !rule.AppliesTo(phase) {
		return RouteNotApplicable, fmt.Sprintf("rule not checked in %s phase", phase), nil
	}

	switch rule.EvaluationType {
	case rules.EvaluationDeterministic:
		return RouteDeterministic, "", nil
	case rules.EvaluationLLMWithTools:
		return RouteLLMWithTools, "", nil
	default:
		return "", "", &RuleConfigError{
			RuleID:  rule.ID,
			Source:  rule.Source,
			Field:   "evaluation_type",
			Message: fmt.Sprintf("unknown evaluation type %q", rule.EvaluationType),
		}
	}
}
