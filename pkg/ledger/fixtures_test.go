package ledger

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

func ptr(b bool) *bool { return &b }

func result(ruleID, subjectID string, sev rules.Severity, violated *bool) *engine.RuleResult {
	return &engine.RuleResult{
		RuleID:           ruleID,
		RuleName:         ruleID + " name",
		SubjectID:        subjectID,
		Category:         rules.CategoryExclusion,
		Phase:            rules.PhaseScreening,
		Violated:         violated,
		Severity:         sev,
		Evidence:         []string{ruleID + " evidence"},
		Reasoning:        "reasoning",
		Confidence:       engine.ConfidenceHigh,
		EvaluationMethod: engine.MethodDeterministic,
		ToolsUsed:        []string{},
		MissingData:      []string{},
		ActualValue:      480.0,
		Threshold:        470.0,
		Operator:         ">",
		ExecutionTimeMS:  3,
	}
}

func notApplicable(ruleID, subjectID string) *engine.RuleResult {
	r := result(ruleID, subjectID, rules.SeverityMajor, nil)
	r.EvaluationMethod = engine.MethodNotApplicable
	return r
}

func errored(ruleID, subjectID string) *engine.RuleResult {
	r := result(ruleID, subjectID, rules.SeverityMajor, nil)
	r.EvaluationMethod = engine.MethodError
	r.Error = "boom"
	return r
}

func record(jobID string, results ...*engine.RuleResult) *RunRecord {
	var scope, ruleIDs []string
	seenS, seenR := map[string]bool{}, map[string]bool{}
	for _, r := range results {
		r.JobID = jobID
		if !seenS[r.SubjectID] {
			seenS[r.SubjectID] = true
			scope = append(scope, r.SubjectID)
		}
		if !seenR[r.RuleID] {
			seenR[r.RuleID] = true
			ruleIDs = append(ruleIDs, r.RuleID)
		}
	}
	created := time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.UTC)
	return NewRunRecord(jobID, scope, ruleIDs, created, results, usage.Totals{
		InputTokens:        3000,
		OutputTokens:       600,
		APICalls:           3,
		LLMRuleEvaluations: 1,
		EstimatedCostUSD:   0.018,
	})
}

// backends returns a fresh instance of every storage backend.
func backends(t *testing.T) map[string]Storage {
	t.Helper()
	sqlite, err := NewSQLiteStorage(&SQLiteConfig{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	mem := NewMemoryStorage()
	t.Cleanup(func() {
		sqlite.Close()
		mem.Close()
	})
	return map[string]Storage{"memory": mem, "sqlite": sqlite}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
