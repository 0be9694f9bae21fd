package rules

import (
	"fmt"
	"sync/atomic"
	"time"
)

var validOperators = map[string]bool{
	">": true, "<": true, ">=": true, "<=": true, "==": true, "!=": true, "in": true,
}

var orderedOperators = map[string]bool{">": true, "<": true, ">=": true, "<=": true}

var validPhases = map[Phase]bool{
	PhaseScreening:         true,
	PhaseBaseline:          true,
	PhaseTreatment:         true,
	PhaseFollowUp:          true,
	PhasePostRandomization: true,
}

var validFieldTypes = map[FieldType]bool{
	FieldBool: true, FieldString: true, FieldNumber: true, FieldStringList: true, FieldAny: true,
}

// Registry is an immutable snapshot of rules and templates. Rules that
// failed validation are kept and marked invalid.
type Registry struct {
	rules     map[string]*Rule
	order     []string
	templates map[string]*Template
	invalid   map[string]*RuleConfigError
	errs      ConfigErrors
	loadedAt  time.Time
}

// NewRegistry validates templates and rules and builds a registry. Defaults
// are applied to copies; the inputs are not modified.
func NewRegistry(templates []*Template, rules []*Rule) *Registry {
	reg := &Registry{
		rules:     make(map[string]*Rule),
		templates: make(map[string]*Template),
		invalid:   make(map[string]*RuleConfigError),
		loadedAt:  time.Now().UTC(),
	}

	for _, t := range templates {
		if err := validateTemplate(t); err != nil {
			reg.errs = append(reg.errs, err)
			continue
		}
		if _, dup := reg.templates[t.ID]; dup {
			reg.errs = append(reg.errs, &RuleConfigError{RuleID: t.ID, Field: "template_id", Message: "duplicate template"})
			continue
		}
		tc := *t
		reg.templates[t.ID] = &tc
	}

	for _, r := range rules {
		if r.ID == "" {
			reg.errs = append(reg.errs, &RuleConfigError{Source: r.Source, Field: "rule_id", Message: "rule_id is required"})
			continue
		}
		if _, dup := reg.rules[r.ID]; dup {
			reg.errs = append(reg.errs, &RuleConfigError{RuleID: r.ID, Source: r.Source, Field: "rule_id", Message: "duplicate rule_id, first definition kept"})
			continue
		}

		rc := *r
		if rc.Severity == "" {
			rc.Severity = SeverityMajor
		}
		if rc.Status == "" {
			rc.Status = StatusActive
		}

		reg.rules[rc.ID] = &rc
		reg.order = append(reg.order, rc.ID)

		if err := reg.validateRule(&rc); err != nil {
			reg.invalid[rc.ID] = err
			reg.errs = append(reg.errs, err)
		}
	}

	return reg
}

func validateTemplate(t *Template) *RuleConfigError {
	fail := func(field, msg string) *RuleConfigError {
		return &RuleConfigError{RuleID: t.ID, Field: field, Message: msg}
	}

	if t.ID == "" {
		return fail("template_id", "template_id is required")
	}
	if len(t.OutputFields) == 0 {
		return fail("output_fields", "at least one output field is required")
	}

	seen := make(map[string]bool)
	for _, f := range t.OutputFields {
		if f.Name == "" {
			return fail("output_fields", "output field name is required")
		}
		if seen[f.Name] {
			return fail("output_fields", fmt.Sprintf("duplicate output field %q", f.Name))
		}
		seen[f.Name] = true
		if !validFieldTypes[f.Type] {
			return fail("output_fields", fmt.Sprintf("field %q has invalid type %q", f.Name, f.Type))
		}
	}

	verdict, ok := t.Field(t.Verdict())
	if !ok {
		return fail("verdict_field", fmt.Sprintf("verdict field %q is not declared", t.Verdict()))
	}
	if verdict.Type != FieldBool {
		return fail("verdict_field", fmt.Sprintf("verdict field %q must be of type bool", t.Verdict()))
	}
	return nil
}

func (reg *Registry) validateRule(r *Rule) *RuleConfigError {
	fail := func(field, msg string) *RuleConfigError {
		return &RuleConfigError{RuleID: r.ID, Source: r.Source, Field: field, Message: msg}
	}

	if !validCategories[r.Category] {
		return fail("category", fmt.Sprintf("unknown category %q", r.Category))
	}
	if !r.Severity.Valid() {
		return fail("severity", fmt.Sprintf("unknown severity %q", r.Severity))
	}
	if r.Status != StatusActive && r.Status != StatusInactive {
		return fail("status", fmt.Sprintf("unknown status %q", r.Status))
	}
	if r.TemplateID == "" {
		return fail("template_id", "template_id is required")
	}
	if _, ok := reg.templates[r.TemplateID]; !ok {
		return fail("template_id", fmt.Sprintf("unknown template %q", r.TemplateID))
	}
	for phase := range r.ApplicablePhases {
		if !validPhases[phase] {
			return fail("applicable_phases", fmt.Sprintf("unknown phase %q", phase))
		}
	}

	switch r.EvaluationType {
	case EvaluationDeterministic:
		return validateDeterministic(r, fail)
	case EvaluationLLMWithTools:
		return nil
	default:
		return fail("evaluation_type", fmt.Sprintf("unknown evaluation type %q", r.EvaluationType))
	}
}

func validateDeterministic(r *Rule, fail func(field, msg string) *RuleConfigError) *RuleConfigError {
	p := r.Parameters
	if p.Selection != "" && !p.Selection.Valid() {
		return fail("parameters.selection", fmt.Sprintf("unknown selection policy %q", p.Selection))
	}

	switch p.CheckKind() {
	case CheckField, CheckThreshold:
		if !validOperators[p.Operator] {
			return fail("parameters.operator", fmt.Sprintf("unknown operator %q", p.Operator))
		}
		if p.Threshold == nil && p.Operator != "==" && p.Operator != "!=" {
			return fail("parameters.threshold", "threshold is required for ordered comparisons")
		}
		if p.CheckKind() == CheckThreshold && p.Selection == "" {
			return fail("parameters.selection", "selection is required for threshold checks (latest, earliest, worst, all)")
		}
		if p.Selection == SelectWorst && !orderedOperators[p.Operator] {
			return fail("parameters.selection", fmt.Sprintf("selection %q needs an ordered operator, got %q", p.Selection, p.Operator))
		}
	case CheckBoolean:
		if p.FieldName == "" {
			return fail("parameters.field_name", "field_name is required for boolean_status checks")
		}
		if p.Expected == nil {
			return fail("parameters.expected", "expected is required for boolean_status checks")
		}
	case CheckAdverse, CheckVisitWindow:
	default:
		return fail("parameters", "deterministic rule selects no check (set field_name, test_name, or check_type)")
	}
	return nil
}

// Rule returns the rule with the given ID.
func (reg *Registry) Rule(id string) (*Rule, bool) {
	r, ok := reg.rules[id]
	return r, ok
}

// Template returns the template with the given ID.
func (reg *Registry) Template(id string) (*Template, bool) {
	t, ok := reg.templates[id]
	return t, ok
}

// Templates returns all valid templates.
func (reg *Registry) Templates() []*Template {
	out := make([]*Template, 0, len(reg.templates))
	for _, t := range reg.templates {
		out = append(out, t)
	}
	return out
}

// Rules returns every loaded rule, valid or not, in load order.
func (reg *Registry) Rules() []*Rule {
	out := make([]*Rule, 0, len(reg.order))
	for _, id := range reg.order {
		out = append(out, reg.rules[id])
	}
	return out
}

// ActiveRules returns active rules in load order, including invalid ones so
// callers report them.
func (reg *Registry) ActiveRules() []*Rule {
	var out []*Rule
	for _, id := range reg.order {
		if r := reg.rules[id]; r.Active() {
			out = append(out, r)
		}
	}
	return out
}

// Select resolves rule IDs in the given order. An empty list selects all
// active rules.
func (reg *Registry) Select(ids []string) ([]*Rule, error) {
	if len(ids) == 0 {
		return reg.ActiveRules(), nil
	}
	out := make([]*Rule, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		r, ok := reg.rules[id]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownRule, id)
		}
		out = append(out, r)
	}
	return out, nil
}

// Invalid returns the configuration error of an invalid rule, or nil.
func (reg *Registry) Invalid(id string) *RuleConfigError {
	return reg.invalid[id]
}

// ConfigErrors returns every configuration error found while building the
// registry.
func (reg *Registry) ConfigErrors() ConfigErrors {
	return reg.errs
}

// LoadedAt returns the time the registry was built.
func (reg *Registry) LoadedAt() time.Time {
	return reg.loadedAt
}

// Source holds the current registry and swaps it atomically on reload.
// Evaluations take a snapshot once per job, so a reload never changes the
// rules of a running job.
type Source struct {
	rulesPath     string
	templatesPath string
	current       atomic.Pointer[Registry]
}

// NewSource loads the registry from disk.
func NewSource(rulesPath, templatesPath string) (*Source, error) {
	s := &Source{rulesPath: rulesPath, templatesPath: templatesPath}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// StaticSource wraps an already built registry.
func StaticSource(reg *Registry) *Source {
	s := &Source{}
	s.current.Store(reg)
	return s
}

// Snapshot returns the current registry.
func (s *Source) Snapshot() *Registry {
	return s.current.Load()
}

// Reload rebuilds the registry from disk. The previous registry stays in
// place if the files cannot be loaded.
func (s *Source) Reload() error {
	reg, err := Load(s.rulesPath, s.templatesPath)
	if err != nil {
		return err
	}
	s.current.Store(reg)
	return nil
}

// Paths returns the rules and templates paths backing the source.
func (s *Source) Paths() (rulesPath, templatesPath string) {
	return s.rulesPath, s.templatesPath
}
