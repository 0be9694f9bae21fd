package rules

import "strings"

// Severity ranks the clinical impact of a rule violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityInfo     Severity = "info"
)

// Rank orders severities from most to least severe. Unknown severities
// sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() < 4
}

// EvaluationType selects the evaluator strategy for a rule.
type EvaluationType string

const (
	EvaluationDeterministic EvaluationType = "deterministic"
	EvaluationLLMWithTools  EvaluationType = "llm_with_tools"
)

// Category groups rules by protocol area.
type Category string

const (
	CategoryExclusion     Category = "exclusion"
	CategoryInclusion     Category = "inclusion"
	CategorySafetyAE      Category = "safety_ae"
	CategorySafetyLab     Category = "safety_lab"
	CategorySafetyVital   Category = "safety_vital"
	CategoryProtocolVisit Category = "protocol_visit"
	CategoryProtocolDose  Category = "protocol_dose"
	CategoryDataQuality   Category = "data_quality"
	CategoryEfficacy      Category = "efficacy"
)

var validCategories = map[Category]bool{
	CategoryExclusion:     true,
	CategoryInclusion:     true,
	CategorySafetyAE:      true,
	CategorySafetyLab:     true,
	CategorySafetyVital:   true,
	CategoryProtocolVisit: true,
	CategoryProtocolDose:  true,
	CategoryDataQuality:   true,
	CategoryEfficacy:      true,
}

// Status controls whether a rule takes part in evaluations.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Phase is a subject's position in the study timeline.
type Phase string

const (
	PhaseScreening         Phase = "screening"
	PhaseBaseline          Phase = "baseline"
	PhaseTreatment         Phase = "treatment"
	PhaseFollowUp          Phase = "follow-up"
	PhasePostRandomization Phase = "post_randomization"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return validPhases[p]
}

// Actions recorded on violations.
const (
	ActionScreenFailure     = "SCREEN_FAILURE"
	ActionProtocolDeviation = "PROTOCOL_DEVIATION"
	ActionSafetySignal      = "SAFETY_SIGNAL"
	ActionRequiresReview    = "REQUIRES_REVIEW"
)

// PhaseRule declares whether a rule is checked in a phase and which action a
// violation in that phase requires.
type PhaseRule struct {
	Check              bool   `yaml:"check" json:"check"`
	ActionIfViolated   string `yaml:"action_if_violated,omitempty" json:"action_if_violated,omitempty"`
	ActionIfDiscovered string `yaml:"action_if_discovered,omitempty" json:"action_if_discovered,omitempty"`
}

// Selection is the policy applied when several records qualify for one
// assessment point.
type Selection string

const (
	SelectLatest   Selection = "latest"
	SelectEarliest Selection = "earliest"
	SelectWorst    Selection = "worst"
	SelectAll      Selection = "all"
)

// Valid reports whether s is a known selection policy.
func (s Selection) Valid() bool {
	switch s {
	case SelectLatest, SelectEarliest, SelectWorst, SelectAll:
		return true
	}
	return false
}

// Check kinds executed by the deterministic evaluator.
const (
	CheckField       = "field"
	CheckThreshold   = "threshold"
	CheckAdverse     = "adverse_event"
	CheckVisitWindow = "visit_window"
	CheckBoolean     = "boolean_status"
)

// Parameters configures a rule check. Deterministic rules use the field,
// threshold, and check-type parameters; LLM rules use the search terms and
// evaluation criteria as prompt hints.
type Parameters struct {
	// FieldName is a demographics or subject field (e.g. "age").
	FieldName string `yaml:"field_name,omitempty" json:"field_name,omitempty"`

	// TestName is a laboratory test or ECG parameter (e.g. "QTcF").
	TestName string `yaml:"test_name,omitempty" json:"test_name,omitempty"`

	// Operator is one of >, <, >=, <=, ==, !=, in.
	Operator string `yaml:"operator,omitempty" json:"operator,omitempty"`

	// Threshold is the comparison value. It may be a number, a string,
	// a list (for "in"), or null.
	Threshold any `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Unit is the threshold unit used in evidence text.
	Unit string `yaml:"unit,omitempty" json:"unit,omitempty"`

	// RuleType is "exclusion" (criterion met is a violation) or
	// "inclusion" (criterion not met is a violation).
	// Default: "exclusion"
	RuleType string `yaml:"rule_type,omitempty" json:"rule_type,omitempty"`

	// Selection is the multiple-record policy for threshold checks.
	Selection Selection `yaml:"selection,omitempty" json:"selection,omitempty"`

	// CheckType selects adverse event, visit window, or boolean checks:
	// ae_grade, sae_flag, ae_ongoing, visit_window, boolean_status.
	CheckType string `yaml:"check_type,omitempty" json:"check_type,omitempty"`

	// MinGrade is the minimum CTCAE grade for ae_grade checks.
	// Default: 3
	MinGrade int `yaml:"min_grade,omitempty" json:"min_grade,omitempty"`

	// Seriousness filters adverse events ("Yes" or "No").
	Seriousness string `yaml:"seriousness,omitempty" json:"seriousness,omitempty"`

	// Expected is the compliant value for boolean_status checks.
	Expected *bool `yaml:"expected,omitempty" json:"expected,omitempty"`

	// SearchTerms hint the reasoning service what to look for, keyed by
	// data area (e.g. "conditions", "medications").
	SearchTerms map[string][]string `yaml:"search_terms,omitempty" json:"search_terms,omitempty"`

	// EvaluationCriteria is free text appended to the reasoning prompt.
	EvaluationCriteria string `yaml:"evaluation_criteria,omitempty" json:"evaluation_criteria,omitempty"`
}

// CheckKind returns the deterministic check the parameters select, or an
// empty string when they select none.
func (p Parameters) CheckKind() string {
	switch p.CheckType {
	case "visit_window":
		return CheckVisitWindow
	case "ae_grade", "sae_flag", "ae_ongoing":
		return CheckAdverse
	case "boolean_status":
		return CheckBoolean
	}
	if p.FieldName != "" {
		return CheckField
	}
	if p.TestName != "" {
		return CheckThreshold
	}
	return ""
}

// Inclusion reports whether the rule is an inclusion criterion.
func (p Parameters) Inclusion() bool {
	return strings.EqualFold(p.RuleType, "inclusion")
}

// Rule is one protocol compliance check. Rules are immutable once loaded.
type Rule struct {
	ID                string              `yaml:"rule_id" json:"rule_id"`
	Name              string              `yaml:"name" json:"name"`
	Description       string              `yaml:"description" json:"description"`
	Category          Category            `yaml:"category" json:"category"`
	Complexity        string              `yaml:"complexity,omitempty" json:"complexity,omitempty"`
	EvaluationType    EvaluationType      `yaml:"evaluation_type" json:"evaluation_type"`
	TemplateID        string              `yaml:"template_id" json:"template_id"`
	Parameters        Parameters          `yaml:"parameters" json:"parameters"`
	ApplicableVisits  []string            `yaml:"applicable_visits,omitempty" json:"applicable_visits,omitempty"`
	ApplicablePhases  map[Phase]PhaseRule `yaml:"applicable_phases,omitempty" json:"applicable_phases,omitempty"`
	Severity          Severity            `yaml:"severity" json:"severity"`
	ProtocolReference string              `yaml:"protocol_section,omitempty" json:"protocol_section,omitempty"`
	Status            Status              `yaml:"status" json:"status"`
	Version           string              `yaml:"version,omitempty" json:"version,omitempty"`
	DomainKnowledge   string              `yaml:"domain_knowledge,omitempty" json:"domain_knowledge,omitempty"`
	ToolsNeeded       []string            `yaml:"tools_needed,omitempty" json:"tools_needed,omitempty"`

	// Source is the file the rule was loaded from.
	Source string `yaml:"-" json:"-"`
}

// AppliesTo reports whether the rule is checked in the given phase. A rule
// without phase configuration applies everywhere.
func (r *Rule) AppliesTo(phase Phase) bool {
	if len(r.ApplicablePhases) == 0 {
		return true
	}
	return r.ApplicablePhases[phase].Check
}

// Action returns the action a violation requires in the given phase, or
// fallback when the phase declares none.
func (r *Rule) Action(phase Phase, fallback string) string {
	pr := r.ApplicablePhases[phase]
	if pr.ActionIfViolated != "" {
		return pr.ActionIfViolated
	}
	if pr.ActionIfDiscovered != "" {
		return pr.ActionIfDiscovered
	}
	return fallback
}

// Active reports whether the rule takes part in evaluations.
func (r *Rule) Active() bool {
	return r.Status == StatusActive
}

// FieldType is the declared type of a template output field.
type FieldType string

const (
	FieldBool       FieldType = "bool"
	FieldString     FieldType = "string"
	FieldNumber     FieldType = "number"
	FieldStringList FieldType = "string_list"
	FieldAny        FieldType = "any"
)

// OutputField declares one field a rule result may populate.
type OutputField struct {
	Name     string    `yaml:"name" json:"name"`
	Type     FieldType `yaml:"type" json:"type"`
	Required bool      `yaml:"required,omitempty" json:"required,omitempty"`
	Nullable bool      `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Enum     []string  `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// Template is the output schema and tool contract shared by rules of a
// similar shape.
type Template struct {
	ID             string        `yaml:"template_id" json:"template_id"`
	Name           string        `yaml:"name" json:"name"`
	OutputFields   []OutputField `yaml:"output_fields" json:"output_fields"`
	ToolsAvailable []string      `yaml:"tools_available,omitempty" json:"tools_available,omitempty"`
	SuitableFor    []string      `yaml:"suitable_for,omitempty" json:"suitable_for,omitempty"`

	// VerdictField names the boolean output field holding the verdict.
	// Default: "violated"
	VerdictField string `yaml:"verdict_field,omitempty" json:"verdict_field,omitempty"`

	// Instructions is optional prompt text describing the task to the
	// reasoning service.
	Instructions string `yaml:"instructions,omitempty" json:"instructions,omitempty"`
}

// Field returns the declared output field with the given name.
func (t *Template) Field(name string) (OutputField, bool) {
	for _, f := range t.OutputFields {
		if f.Name == name {
			return f, true
		}
	}
	return OutputField{}, false
}

// Verdict returns the name of the verdict field.
func (t *Template) Verdict() string {
	if t.VerdictField == "" {
		return "violated"
	}
	return t.VerdictField
}

// Permits reports whether the template allows the named tool.
func (t *Template) Permits(tool string) bool {
	for _, name := range t.ToolsAvailable {
		if name == tool {
			return true
		}
	}
	return false
}
