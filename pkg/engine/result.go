package engine

import (
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

// Method records how a rule result was produced.
type Method string

const (
	MethodDeterministic Method = "deterministic"
	MethodLLMWithTools  Method = "llm_with_tools"
	MethodNotApplicable Method = "not_applicable"
	MethodError         Method = "error"
)

// Confidence is the evaluator's confidence in a verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ViolationType classifies a violation by the action it requires.
type ViolationType string

const (
	ViolationEligibility       ViolationType = "eligibility_violation"
	ViolationSafetySignal      ViolationType = "safety_signal"
	ViolationProtocolDeviation ViolationType = "protocol_deviation"
	ViolationReview            ViolationType = "requires_review"
)

// RuleResult is the verdict for one (job, rule, subject). Results are created
// once and never modified afterwards.
type RuleResult struct {
	RuleID    string         `json:"rule_id"`
	RuleName  string         `json:"rule_name"`
	SubjectID string         `json:"subject_id"`
	JobID     string         `json:"job_id"`
	Category  rules.Category `json:"category,omitempty"`
	Phase     rules.Phase    `json:"phase,omitempty"`

	// Violated is true (violation), false (pass), or nil (inconclusive).
	Violated *bool          `json:"violated"`
	Severity rules.Severity `json:"severity"`

	Evidence         []string   `json:"evidence"`
	Reasoning        string     `json:"reasoning"`
	Confidence       Confidence `json:"confidence"`
	EvaluationMethod Method     `json:"evaluation_method"`
	ToolsUsed        []string   `json:"tools_used"`
	ActionRequired   string     `json:"action_required,omitempty"`
	Recommendation   string     `json:"recommendation,omitempty"`
	MissingData      []string   `json:"missing_data"`
	ActualValue      any        `json:"actual_value"`
	Threshold        any        `json:"threshold"`
	Operator         string     `json:"operator,omitempty"`
	RequiresReview   bool       `json:"requires_review"`
	Error            string     `json:"error,omitempty"`
	ExecutionTimeMS  int64      `json:"execution_time_ms"`
}

// IsViolation reports whether the result is a violation.
func (r *RuleResult) IsViolation() bool {
	return r.Violated != nil && *r.Violated
}

// Inconclusive reports whether the result has no verdict.
func (r *RuleResult) Inconclusive() bool {
	return r.Violated == nil
}

// ViolationType derives the violation class from the required action.
func (r *RuleResult) ViolationType() ViolationType {
	switch r.ActionRequired {
	case rules.ActionScreenFailure:
		return ViolationEligibility
	case rules.ActionSafetySignal:
		return ViolationSafetySignal
	case rules.ActionProtocolDeviation:
		return ViolationProtocolDeviation
	default:
		return ViolationReview
	}
}

// Verdict returns "violation", "pass", "inconclusive", "not_applicable", or
// "error".
func (r *RuleResult) Verdict() string {
	switch {
	case r.EvaluationMethod == MethodNotApplicable:
		return "not_applicable"
	case r.EvaluationMethod == MethodError:
		return "error"
	case r.Violated == nil:
		return "inconclusive"
	case *r.Violated:
		return "violation"
	default:
		return "pass"
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// newResult returns a result carrying the rule and subject envelope.
func newResult(rule *rules.Rule, subjectID, jobID string, phase rules.Phase) *RuleResult {
	return &RuleResult{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		SubjectID:   subjectID,
		JobID:       jobID,
		Category:    rule.Category,
		Phase:       phase,
		Severity:    rule.Severity,
		Evidence:    []string{},
		ToolsUsed:   []string{},
		MissingData: []string{},
	}
}

// notApplicable returns the result for a rule that is not checked in the
// subject's phase.
func notApplicable(rule *rules.Rule, subjectID, jobID string, phase rules.Phase, reason string) *RuleResult {
	r := newResult(rule, subjectID, jobID, phase)
	r.EvaluationMethod = MethodNotApplicable
	r.Reasoning = reason
	r.Confidence = ConfidenceHigh
	return r
}

// errorResult returns an error result; the verdict is always nil.
func errorResult(rule *rules.Rule, subjectID, jobID string, phase rules.Phase, err error) *RuleResult {
	r := newResult(rule, subjectID, jobID, phase)
	r.EvaluationMethod = MethodError
	r.Confidence = ConfidenceLow
	r.RequiresReview = true
	r.Error = err.Error()
	r.Reasoning = "Evaluation failed: " + err.Error()
	return r
}

// finish stamps the execution time.
func (r *RuleResult) finish(start time.Time) *RuleResult {
	r.ExecutionTimeMS = time.Since(start).Milliseconds()
	return r
}

// applyAction sets action_required and prefixes the recommendation for
// violations found in the given phase.
func applyAction(r *RuleResult, rule *rules.Rule, phase rules.Phase, fallback string) {
	if !r.IsViolation() {
		r.ActionRequired = ""
		return
	}
	r.ActionRequired = rule.Action(phase, fallback)
	if r.Recommendation == "" {
		r.Recommendation = rule.ID + " " + rule.Name
	}
	switch phase {
	case rules.PhaseScreening:
		r.Recommendation = "SCREEN FAILURE - " + r.Recommendation
	case rules.PhasePostRandomization:
		r.Recommendation = "PROTOCOL DEVIATION - " + r.Recommendation
	}
}
