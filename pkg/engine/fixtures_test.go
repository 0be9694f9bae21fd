package engine

import (
	"testing"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

const templatesPath = "../../configs/templates.yaml"

func loadTemplates(t *testing.T) []*rules.Template {
	t.Helper()
	tmpls, err := rules.LoadTemplates(templatesPath)
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	return tmpls
}

// newRegistry builds a registry over the shipped templates and returns it
// with the registry's copies of rs, in order.
func newRegistry(t *testing.T, rs ...*rules.Rule) (*rules.Registry, []*rules.Rule) {
	t.Helper()
	reg := rules.NewRegistry(loadTemplates(t), rs)
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	selected, err := reg.Select(ids)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	return reg, selected
}

func template(t *testing.T, reg *rules.Registry, id string) *rules.Template {
	t.Helper()
	tmpl, ok := reg.Template(id)
	if !ok {
		t.Fatalf("template %s not loaded", id)
	}
	return tmpl
}

func screeningPhases(action string) map[rules.Phase]rules.PhaseRule {
	return map[rules.Phase]rules.PhaseRule{
		rules.PhaseScreening:         {Check: true, ActionIfViolated: action},
		rules.PhasePostRandomization: {Check: true, ActionIfDiscovered: rules.ActionProtocolDeviation},
	}
}

func qtcfRule() *rules.Rule {
	return &rules.Rule{
		ID:             "EXCL-008",
		Name:           "QTcF prolongation",
		Category:       rules.CategoryExclusion,
		EvaluationType: rules.EvaluationDeterministic,
		TemplateID:     "SIMPLE_THRESHOLD_TEMPLATE",
		Severity:       rules.SeverityCritical,
		Status:         rules.StatusActive,
		Parameters: rules.Parameters{
			TestName:  "QTcF",
			Operator:  ">",
			Threshold: 470,
			Unit:      "msec",
			RuleType:  "exclusion",
			Selection: rules.SelectEarliest,
		},
		ApplicablePhases: screeningPhases(rules.ActionScreenFailure),
	}
}

func ageRule() *rules.Rule {
	return &rules.Rule{
		ID:             "INCL-001",
		Name:           "Adult subjects",
		Category:       rules.CategoryInclusion,
		EvaluationType: rules.EvaluationDeterministic,
		TemplateID:     "SIMPLE_THRESHOLD_TEMPLATE",
		Severity:       rules.SeverityCritical,
		Status:         rules.StatusActive,
		Parameters: rules.Parameters{
			FieldName: "age",
			Operator:  ">=",
			Threshold: 18,
			RuleType:  "inclusion",
		},
		ApplicablePhases: map[rules.Phase]rules.PhaseRule{
			rules.PhaseScreening: {Check: true, ActionIfViolated: rules.ActionScreenFailure},
		},
	}
}

func pdOneRule() *rules.Rule {
	return &rules.Rule{
		ID:             "EXCL-001",
		Name:           "Prior PD-1/PD-L1 therapy",
		Description:    "Subjects previously treated with an anti-PD-1 or anti-PD-L1 agent are excluded.",
		Category:       rules.CategoryExclusion,
		EvaluationType: rules.EvaluationLLMWithTools,
		TemplateID:     "COMPLEX_EXCLUSION_TEMPLATE",
		Severity:       rules.SeverityCritical,
		Status:         rules.StatusActive,
		ToolsNeeded:    []string{clinical.ToolCheckConMeds, clinical.ToolCheckMedicalHistory, clinical.ToolGetTumorAssessments},
		Parameters: rules.Parameters{
			SearchTerms:        map[string][]string{"medications": {"pembrolizumab", "nivolumab"}},
			EvaluationCriteria: "Any documented prior exposure counts.",
		},
		DomainKnowledge:  "Checkpoint inhibitors are often recorded by brand name.",
		ApplicablePhases: screeningPhases(rules.ActionScreenFailure),
	}
}

func f64(v float64) *float64 { return &v }

func screeningSubject(id string) clinical.Subject {
	return clinical.Subject{
		ID:          id,
		SiteID:      "101",
		StudyStatus: "Screening",
		Demographics: map[string]any{
			"age":              45,
			"sex":              "F",
			"pregnancy_status": "No",
		},
	}
}

func subjectWithECG(id string, qtcf ...float64) clinical.SubjectRecord {
	rec := clinical.SubjectRecord{Subject: screeningSubject(id)}
	for i, v := range qtcf {
		rec.ECGs = append(rec.ECGs, clinical.ECGResult{
			ECGDate:        []string{"2024-01-10", "2024-02-10", "2024-03-10"}[i],
			QTcFInterval:   f64(v),
			Interpretation: "Sinus rhythm",
		})
	}
	return rec
}
