package engine

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

// envelopeFields are set by the engine on every result. They are outside the
// template contract; values the model supplies for them are ignored.
var envelopeFields = map[string]bool{
	"rule_id":           true,
	"rule_name":         true,
	"subject_id":        true,
	"job_id":            true,
	"severity":          true,
	"evaluation_method": true,
	"execution_time_ms": true,
	"tools_used":        true,
	"error":             true,
}

// CheckOutput validates an output object against a template. Only declared
// fields may be populated, every required field must be present, and values
// must match the declared type and enum. It returns one message per problem,
// sorted, or nil when the object satisfies the contract.
func CheckOutput(tmpl *rules.Template, obj map[string]any) []string {
	var problems []string

	for name, value := range obj {
		if envelopeFields[name] {
			continue
		}
		field, ok := tmpl.Field(name)
		if !ok {
			problems = append(problems, fmt.Sprintf("field %q is not declared by the template", name))
			continue
		}
		if msg := checkValue(field, value); msg != "" {
			problems = append(problems, msg)
		}
	}

	for _, field := range tmpl.OutputFields {
		if !field.Required {
			continue
		}
		if _, ok := obj[field.Name]; !ok {
			problems = append(problems, fmt.Sprintf("required field %q is missing", field.Name))
		}
	}

	sort.Strings(problems)
	return problems
}

func checkValue(field rules.OutputField, value any) string {
	if value == nil {
		if field.Nullable || field.Type == rules.FieldAny {
			return ""
		}
		return fmt.Sprintf("field %q must not be null", field.Name)
	}

	switch field.Type {
	case rules.FieldBool:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("field %q must be a boolean, got %T", field.Name, value)
		}
	case rules.FieldNumber:
		if !isNumber(value) {
			return fmt.Sprintf("field %q must be a number, got %T", field.Name, value)
		}
	case rules.FieldString:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("field %q must be a string, got %T", field.Name, value)
		}
		if len(field.Enum) > 0 && !slices.Contains(field.Enum, s) {
			return fmt.Sprintf("field %q value %q is not one of %v", field.Name, s, field.Enum)
		}
	case rules.FieldStringList:
		if !isStringList(value) {
			return fmt.Sprintf("field %q must be a list of strings", field.Name)
		}
	}
	return ""
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32, json.Number:
		return true
	}
	return false
}

func isStringList(v any) bool {
	switch list := v.(type) {
	case []string:
		return true
	case []any:
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

// resultFields projects the populated content fields of a result onto the
// template's field names. The verdict is always present.
func resultFields(tmpl *rules.Template, r *RuleResult) map[string]any {
	obj := map[string]any{}
	if r.Violated == nil {
		obj[tmpl.Verdict()] = nil
	} else {
		obj[tmpl.Verdict()] = *r.Violated
	}
	if len(r.Evidence) > 0 {
		obj["evidence"] = r.Evidence
	}
	if r.Reasoning != "" {
		obj["reasoning"] = r.Reasoning
	}
	if r.Confidence != "" {
		obj["confidence"] = string(r.Confidence)
	}
	if r.ActionRequired != "" {
		obj["action_required"] = r.ActionRequired
	}
	if r.Recommendation != "" {
		obj["recommendation"] = r.Recommendation
	}
	if len(r.MissingData) > 0 {
		obj["missing_data"] = r.MissingData
	}
	if r.ActualValue != nil {
		obj["actual_value"] = r.ActualValue
	}
	if r.Threshold != nil {
		obj["threshold"] = r.Threshold
	}
	if r.Operator != "" {
		obj["operator"] = r.Operator
	}
	if r.RequiresReview {
		obj["requires_review"] = true
	}
	return obj
}

// checkResult validates an engine-built result against its template.
func checkResult(tmpl *rules.Template, r *RuleResult) error {
	if problems := CheckOutput(tmpl, resultFields(tmpl, r)); len(problems) > 0 {
		return &MalformedOutputError{RuleID: r.RuleID, TemplateID: tmpl.ID, Problems: problems}
	}
	return nil
}

// applyOutput copies a contract-checked model output into r.
func applyOutput(tmpl *rules.Template, obj map[string]any, r *RuleResult) {
	if v, ok := obj[tmpl.Verdict()].(bool); ok {
		r.Violated = boolPtr(v)
	}
	if s, ok := obj["reasoning"].(string); ok {
		r.Reasoning = s
	}
	if s, ok := obj["confidence"].(string); ok {
		r.Confidence = Confidence(s)
	}
	if s, ok := obj["action_required"].(string); ok {
		r.ActionRequired = s
	}
	if s, ok := obj["recommendation"].(string); ok {
		r.Recommendation = s
	}
	if s, ok := obj["operator"].(string); ok {
		r.Operator = s
	}
	if b, ok := obj["requires_review"].(bool); ok {
		r.RequiresReview = b
	}
	r.Evidence = appendStrings(r.Evidence, obj["evidence"])
	r.MissingData = appendStrings(r.MissingData, obj["missing_data"])
	r.ActualValue = obj["actual_value"]
	r.Threshold = obj["threshold"]
}

func appendStrings(dst []string, v any) []string {
	switch list := v.(type) {
	case []string:
		return append(dst, list...)
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				dst = append(dst, s)
			}
		}
	}
	return dst
}
