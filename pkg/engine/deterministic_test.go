package engine

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

func runDeterministic(t *testing.T, rec clinical.SubjectRecord, rule *rules.Rule) *RuleResult {
	t.Helper()
	lib := clinical.NewMemoryLibrary(rec)
	reg, rs := newRegistry(t, rule)
	if err := reg.Invalid(rule.ID); err != nil {
		t.Fatalf("rule %s invalid: %v", rule.ID, err)
	}
	subject := rec.Subject
	r := NewDeterministicEvaluator(lib).Evaluate(context.Background(), rs[0], template(t, reg, rule.TemplateID), &subject, "job-1", PhaseOf(&subject))
	if r.EvaluationMethod == MethodError {
		t.Fatalf("evaluation error: %s", r.Error)
	}
	return r
}

func labRule(id, test, op string, threshold float64, inclusion bool, sel rules.Selection) *rules.Rule {
	ruleType := "exclusion"
	if inclusion {
		ruleType = "inclusion"
	}
	return &rules.Rule{
		ID:             id,
		Name:           test + " check",
		Category:       rules.CategorySafetyLab,
		EvaluationType: rules.EvaluationDeterministic,
		TemplateID:     "SIMPLE_THRESHOLD_TEMPLATE",
		Severity:       rules.SeverityMajor,
		Parameters: rules.Parameters{
			TestName: test, Operator: op, Threshold: threshold, RuleType: ruleType, Selection: sel,
		},
	}
}

func withLabs(test, unit string, values ...float64) clinical.SubjectRecord {
	rec := clinical.SubjectRecord{Subject: screeningSubject("101-010")}
	for i, v := range values {
		rec.Labs = append(rec.Labs, clinical.LabResult{
			CollectionDate: []string{"2024-01-05", "2024-02-05", "2024-03-05", "2024-04-05"}[i],
			TestName:       test,
			Value:          f64(v),
			Unit:           unit,
		})
	}
	rec.Labs = append(rec.Labs, clinical.LabResult{CollectionDate: "2024-05-05", TestName: test, Unit: unit})
	return rec
}

func TestThresholdCheck_Selection(t *testing.T) {
	tests := []struct {
		name      string
		op        string
		threshold float64
		inclusion bool
		sel       rules.Selection
		values    []float64
		violated  bool
		actual    float64
	}{
		{"latest exclusion pass", ">", 100, false, rules.SelectLatest, []float64{150, 90}, false, 90},
		{"earliest exclusion violation", ">", 100, false, rules.SelectEarliest, []float64{150, 90}, true, 150},
		{"worst exclusion takes max", ">", 100, false, rules.SelectWorst, []float64{90, 150, 80}, true, 150},
		{"worst exclusion below takes min", "<", 1.0, false, rules.SelectWorst, []float64{1.2, 0.8, 1.5}, true, 0.8},
		{"worst inclusion takes min", ">=", 1.5, true, rules.SelectWorst, []float64{2.0, 1.2, 3.0}, true, 1.2},
		{"worst inclusion pass", ">=", 1.5, true, rules.SelectWorst, []float64{2.0, 1.8}, false, 1.8},
		{"all reports first violation", ">", 100, false, rules.SelectAll, []float64{90, 120, 130}, true, 120},
		{"all pass reports latest", ">", 100, false, rules.SelectAll, []float64{90, 95}, false, 95},
		{"latest inclusion fail", "<=", 100, true, rules.SelectLatest, []float64{50, 140}, true, 140},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := labRule("LAB-001", "ALT", tt.op, tt.threshold, tt.inclusion, tt.sel)
			r := runDeterministic(t, withLabs("ALT", "U/L", tt.values...), rule)

			if r.Violated == nil || *r.Violated != tt.violated {
				t.Fatalf("violated = %v, want %v (evidence %v)", r.Violated, tt.violated, r.Evidence)
			}
			if r.ActualValue != tt.actual {
				t.Errorf("actual_value = %v, want %v", r.ActualValue, tt.actual)
			}
			if r.Threshold != tt.threshold || r.Operator != tt.op {
				t.Errorf("threshold/operator = %v %q", r.Threshold, r.Operator)
			}
			if tt.sel == rules.SelectAll && len(r.Evidence) != len(tt.values) {
				t.Errorf("evidence = %d lines, want one per value", len(r.Evidence))
			}
		})
	}
}

func TestThresholdCheck_LabEvidence(t *testing.T) {
	rule := labRule("INCL-006", "ANC", ">=", 1.5, true, rules.SelectLatest)
	r := runDeterministic(t, withLabs("ANC", "10^9/L", 1.1), rule)

	want := "ANC: 1.1 10^9/L >= 1.5 -> FAIL (collected 2024-01-05)"
	if len(r.Evidence) != 1 || r.Evidence[0] != want {
		t.Errorf("evidence = %q, want %q", r.Evidence, want)
	}
	if r.ActionRequired != rules.ActionScreenFailure {
		t.Errorf("action_required = %q, want fallback SCREEN_FAILURE", r.ActionRequired)
	}
}

func TestThresholdCheck_NoLabs(t *testing.T) {
	rule := labRule("LAB-002", "Creatinine", ">", 1.5, false, rules.SelectLatest)
	r := runDeterministic(t, clinical.SubjectRecord{Subject: screeningSubject("101-010")}, rule)

	if r.Violated != nil || !reflect.DeepEqual(r.MissingData, []string{clinical.SourceLabs}) {
		t.Errorf("violated = %v missing = %v", r.Violated, r.MissingData)
	}
}

func fieldRule(id, field, op string, threshold any, inclusion bool) *rules.Rule {
	r := ageRule()
	r.ID = id
	r.Parameters = rules.Parameters{FieldName: field, Operator: op, Threshold: threshold, RuleType: "exclusion"}
	if inclusion {
		r.Parameters.RuleType = "inclusion"
	}
	return r
}

func TestFieldCheck(t *testing.T) {
	tests := []struct {
		name     string
		rule     *rules.Rule
		demo     map[string]any
		violated *bool
		evidence string
	}{
		{"inclusion met", fieldRule("INCL-001", "age", ">=", 18, true), map[string]any{"age": 45},
			boolPtr(false), "age: 45 (required >= 18) -> PASS"},
		{"inclusion not met", fieldRule("INCL-001", "age", ">=", 18, true), map[string]any{"age": 16},
			boolPtr(true), "age: 16 (required >= 18) -> FAIL - criterion not met"},
		{"exclusion met", fieldRule("EXCL-020", "ecog", ">", 1, false), map[string]any{"ecog": "2"},
			boolPtr(true), "ecog: 2 > 1 -> VIOLATION"},
		{"in list", fieldRule("EXCL-021", "sex", "in", []any{"M"}, false), map[string]any{"sex": "F"},
			boolPtr(false), "sex: F in [M] -> PASS"},
		{"null threshold not equal", fieldRule("EXCL-022", "hiv_status", "!=", nil, false), map[string]any{"hiv_status": "positive"},
			boolPtr(true), "hiv_status: positive != null -> VIOLATION"},
		{"null threshold equal on empty", fieldRule("EXCL-023", "withdrawal_reason", "==", nil, true), map[string]any{},
			boolPtr(false), "withdrawal_reason: null (required == null) -> PASS"},
		{"missing value", fieldRule("INCL-001", "age", ">=", 18, true), map[string]any{}, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := clinical.SubjectRecord{Subject: screeningSubject("101-020")}
			rec.Subject.Demographics = tt.demo
			r := runDeterministic(t, rec, tt.rule)

			if !reflect.DeepEqual(r.Violated, tt.violated) {
				t.Fatalf("violated = %v, want %v", deref(r.Violated), deref(tt.violated))
			}
			if tt.violated == nil {
				if !reflect.DeepEqual(r.MissingData, []string{clinical.SourceDemographics}) {
					t.Errorf("missing_data = %v", r.MissingData)
				}
				return
			}
			if len(r.Evidence) != 1 || r.Evidence[0] != tt.evidence {
				t.Errorf("evidence = %q, want %q", r.Evidence, tt.evidence)
			}
		})
	}
}

func deref(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func pregnancyRule() *rules.Rule {
	expected := false
	return &rules.Rule{
		ID:             "EXCL-010",
		Name:           "Pregnancy",
		Category:       rules.CategoryExclusion,
		EvaluationType: rules.EvaluationDeterministic,
		TemplateID:     "BOOLEAN_STATUS_TEMPLATE",
		Severity:       rules.SeverityCritical,
		Parameters:     rules.Parameters{CheckType: "boolean_status", FieldName: "pregnancy_status", Expected: &expected},
	}
}

func TestBooleanCheck(t *testing.T) {
	tests := []struct {
		value    any
		violated *bool
	}{
		{"No", boolPtr(false)},
		{"Positive", boolPtr(true)},
		{true, boolPtr(true)},
		{"unknown", nil},
	}
	for _, tt := range tests {
		rec := clinical.SubjectRecord{Subject: screeningSubject("101-030")}
		rec.Subject.Demographics["pregnancy_status"] = tt.value
		r := runDeterministic(t, rec, pregnancyRule())
		if !reflect.DeepEqual(r.Violated, tt.violated) {
			t.Errorf("pregnancy_status=%v: violated = %v, want %v", tt.value, deref(r.Violated), deref(tt.violated))
		}
		if r.Operator != "==" || r.Threshold != false {
			t.Errorf("operator/threshold = %q %v", r.Operator, r.Threshold)
		}
	}
}

func aeRule(checkType string, minGrade int) *rules.Rule {
	return &rules.Rule{
		ID:             "SAFE-001",
		Name:           "Grade 3+ adverse events",
		Category:       rules.CategorySafetyAE,
		EvaluationType: rules.EvaluationDeterministic,
		TemplateID:     "SIMPLE_THRESHOLD_TEMPLATE",
		Severity:       rules.SeverityMajor,
		Parameters:     rules.Parameters{CheckType: checkType, MinGrade: minGrade},
		ApplicablePhases: map[rules.Phase]rules.PhaseRule{
			rules.PhaseScreening:         {Check: true, ActionIfViolated: rules.ActionSafetySignal},
			rules.PhasePostRandomization: {Check: true, ActionIfViolated: rules.ActionSafetySignal},
		},
	}
}

func TestAdverseEventCheck(t *testing.T) {
	events := []clinical.AdverseEvent{
		{Term: "Nausea", Grade: 1, Seriousness: "No", OnsetDate: "2024-02-01"},
		{Term: "Neutropenia", Grade: 3, Seriousness: "No", OnsetDate: "2024-02-10", Ongoing: true},
		{Term: "Pneumonitis", Grade: 4, Seriousness: "Yes", OnsetDate: "2024-03-01"},
	}
	tests := []struct {
		name     string
		rule     *rules.Rule
		events   []clinical.AdverseEvent
		violated bool
		actual   float64
		evidence int
	}{
		{"grade default 3", aeRule("ae_grade", 0), events, true, 4, 2},
		{"grade 5 none", aeRule("ae_grade", 5), events, false, 4, 1},
		{"serious", aeRule("sae_flag", 0), events, true, 1, 1},
		{"ongoing", aeRule("ae_ongoing", 0), events, true, 1, 1},
		{"no events", aeRule("ae_grade", 0), nil, false, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := clinical.SubjectRecord{Subject: screeningSubject("101-040"), AdverseEvents: tt.events}
			r := runDeterministic(t, rec, tt.rule)
			if r.Violated == nil || *r.Violated != tt.violated {
				t.Fatalf("violated = %v, want %v", deref(r.Violated), tt.violated)
			}
			if r.ActualValue != tt.actual {
				t.Errorf("actual_value = %v, want %v", r.ActualValue, tt.actual)
			}
			if len(r.Evidence) != tt.evidence {
				t.Errorf("evidence = %v", r.Evidence)
			}
			if tt.violated && r.ViolationType() != ViolationSafetySignal {
				t.Errorf("ViolationType() = %s", r.ViolationType())
			}
		})
	}
}

func visitRule() *rules.Rule {
	return &rules.Rule{
		ID:             "DEV-001",
		Name:           "Visit window compliance",
		Category:       rules.CategoryProtocolVisit,
		EvaluationType: rules.EvaluationDeterministic,
		TemplateID:     "VISIT_COMPLIANCE_TEMPLATE",
		Severity:       rules.SeverityMinor,
		Parameters:     rules.Parameters{CheckType: "visit_window"},
		ApplicablePhases: map[rules.Phase]rules.PhaseRule{
			rules.PhasePostRandomization: {Check: true, ActionIfViolated: rules.ActionProtocolDeviation},
		},
	}
}

func TestVisitWindowCheck(t *testing.T) {
	rec := clinical.SubjectRecord{Subject: screeningSubject("101-050")}
	rec.Subject.StudyStatus = "Active"
	rec.Subject.RandomizationDate = "2024-01-01"
	rec.Visits = []clinical.Visit{
		{VisitNumber: 2, VisitName: "Baseline", ScheduledDate: "2024-01-01", ActualDate: "2024-01-01", Completed: true},
		{VisitNumber: 3, VisitName: "Cycle 1 Day 1", ScheduledDate: "2024-01-08", ActualDate: "2024-01-10", Completed: true},
		{VisitNumber: 4, VisitName: "Cycle 2 Day 1", ScheduledDate: "2024-01-29", ActualDate: "2024-02-05", Completed: true},
		{VisitNumber: 12, VisitName: "Follow-up 1", ScheduledDate: "2024-06-01", Missed: true},
	}

	r := runDeterministic(t, rec, visitRule())
	if !r.IsViolation() || r.ActualValue != float64(1) {
		t.Fatalf("violated = %v actual = %v", deref(r.Violated), r.ActualValue)
	}
	if r.Operator != "" {
		t.Errorf("operator = %q, want none", r.Operator)
	}
	if len(r.Evidence) != 1 || !strings.Contains(r.Evidence[0], "late by 7 days") {
		t.Errorf("evidence = %v", r.Evidence)
	}
	if r.ActionRequired != rules.ActionProtocolDeviation || !strings.HasPrefix(r.Recommendation, "PROTOCOL DEVIATION - ") {
		t.Errorf("action = %q recommendation = %q", r.ActionRequired, r.Recommendation)
	}

	rec.Visits = rec.Visits[:1]
	r = runDeterministic(t, rec, visitRule())
	if r.Violated != nil || !reflect.DeepEqual(r.MissingData, []string{clinical.SourceVisits}) {
		t.Errorf("no windowed visits: violated = %v missing = %v", deref(r.Violated), r.MissingData)
	}
}

type failingLibrary struct {
	*clinical.MemoryLibrary
}

func (failingLibrary) ECGs(ctx context.Context, subjectID string) ([]clinical.ECGResult, error) {
	return nil, clinical.NewDataUnavailableError(subjectID, clinical.SourceECG, "connection reset", nil)
}

func TestDeterministic_DataUnavailable(t *testing.T) {
	rec := subjectWithECG("101-060", 480)
	lib := failingLibrary{clinical.NewMemoryLibrary(rec)}
	reg, rs := newRegistry(t, qtcfRule())

	r := NewDeterministicEvaluator(lib).Evaluate(context.Background(), rs[0], template(t, reg, "SIMPLE_THRESHOLD_TEMPLATE"), &rec.Subject, "job-1", rules.PhaseScreening)
	if r.EvaluationMethod != MethodDeterministic || r.Violated != nil {
		t.Fatalf("result = %s violated=%v", r.EvaluationMethod, deref(r.Violated))
	}
	if !reflect.DeepEqual(r.MissingData, []string{clinical.SourceECG}) || r.Confidence != ConfidenceLow {
		t.Errorf("missing = %v confidence = %s", r.MissingData, r.Confidence)
	}
}

func TestDeterministic_ContractViolationIsError(t *testing.T) {
	rec := subjectWithECG("101-070", 480)
	lib := clinical.NewMemoryLibrary(rec)
	reg, rs := newRegistry(t, qtcfRule())

	// VISIT_COMPLIANCE_TEMPLATE declares no operator field.
	tmpl := template(t, reg, "VISIT_COMPLIANCE_TEMPLATE")
	r := NewDeterministicEvaluator(lib).Evaluate(context.Background(), rs[0], tmpl, &rec.Subject, "job-1", rules.PhaseScreening)
	if r.EvaluationMethod != MethodError || r.Violated != nil {
		t.Fatalf("result = %s violated=%v, want error", r.EvaluationMethod, deref(r.Violated))
	}
	if !strings.Contains(r.Error, `"operator"`) {
		t.Errorf("error = %q", r.Error)
	}
}
