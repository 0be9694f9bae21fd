package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

func TestUsageReport(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []*ledger.RunRecord{
		{JobID: "job-2", CompletedAt: now, Usage: usage.Totals{APICalls: 3, InputTokens: 3000, OutputTokens: 600, LLMRuleEvaluations: 1, EstimatedCostUSD: 0.018}},
		{JobID: "job-1", CompletedAt: now.Add(-time.Hour), Usage: usage.Totals{APICalls: 2, InputTokens: 2000, OutputTokens: 400, LLMRuleEvaluations: 1, EstimatedCostUSD: 0.012}},
	}

	r := newUsageReport(runs)
	if r.Total.APICalls != 5 || r.Total.InputTokens != 5000 || r.Total.LLMRuleEvaluations != 2 {
		t.Errorf("Total = %+v", r.Total)
	}

	var buf bytes.Buffer
	if err := writeOutput(&buf, "text", r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "5 calls, 5000 input / 1000 output tokens, $0.0300") {
		t.Errorf("text output = %q", buf.String())
	}

	rows := r.Rows()
	if len(rows) != 2 || rows[0][0] != "job-2" || rows[0][1] != "2024-03-01T12:00:00Z" {
		t.Errorf("rows = %v", rows)
	}
}

func TestUsageReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeOutput(&buf, "json", newUsageReport(nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"runs": []`) {
		t.Errorf("empty report should encode runs as [], got %s", buf.String())
	}
}

func TestViolationReport_Text(t *testing.T) {
	violated := true
	r := violationReport{
		Violations: []*engine.RuleResult{{
			SubjectID:        "101-001",
			RuleID:           "EXCL-008",
			Severity:         "critical",
			Violated:         &violated,
			EvaluationMethod: engine.MethodDeterministic,
			ActionRequired:   "SCREEN_FAILURE",
			Evidence:         []string{"QTcF 482 msec > 470"},
		}},
	}
	r.Summary = ledger.Summarize(r.Violations)

	var buf bytes.Buffer
	if err := writeOutput(&buf, "text", r); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"101-001", "EXCL-008", "QTcF 482 msec > 470", "1 violations across 1 subjects and 1 rules (critical 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := writeOutput(&buf, "text", violationReport{}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "No current violations" {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestWriteOutput_BadFormat(t *testing.T) {
	if err := writeOutput(&bytes.Buffer{}, "xml", violationReport{}); err == nil {
		t.Error("writeOutput() should reject unknown formats")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 10); got != "aaaaaaa..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("line\nbreak", 20); got != "line break" {
		t.Errorf("truncate() = %q", got)
	}
}
