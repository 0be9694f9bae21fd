package ledger

import (
	"sort"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

// Counts summarises the results of a run.
type Counts struct {
	Critical      int `json:"critical"`
	Major         int `json:"major"`
	Minor         int `json:"minor"`
	Info          int `json:"info"`
	Violations    int `json:"violations"`
	Passed        int `json:"passed"`
	Inconclusive  int `json:"inconclusive"`
	NotApplicable int `json:"not_applicable"`
	Errors        int `json:"errors"`
}

// add counts one result. Severity counts include violations only.
func (c *Counts) add(r *engine.RuleResult) {
	switch r.Verdict() {
	case "not_applicable":
		c.NotApplicable++
		return
	case "error":
		c.Errors++
		return
	case "inconclusive":
		c.Inconclusive++
		return
	case "pass":
		c.Passed++
		return
	}
	c.Violations++
	switch r.Severity {
	case rules.SeverityCritical:
		c.Critical++
	case rules.SeverityMajor:
		c.Major++
	case rules.SeverityMinor:
		c.Minor++
	default:
		c.Info++
	}
}

// CountResults tallies results.
func CountResults(results []*engine.RuleResult) Counts {
	var c Counts
	for _, r := range results {
		c.add(r)
	}
	return c
}

// RunRecord is the immutable outcome of one evaluation job.
type RunRecord struct {
	JobID string `json:"job_id"`

	// Seq is the append position assigned by storage. Later runs have
	// larger values.
	Seq int64 `json:"seq"`

	// Scope lists the evaluated subject ids in submission order.
	Scope   []string `json:"scope"`
	RuleIDs []string `json:"rule_ids"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Status is the final job status (done, error, cancelled).
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	Results []*engine.RuleResult `json:"results"`
	Counts  Counts               `json:"counts"`
	Usage   usage.Totals         `json:"usage"`
}

// NewRunRecord builds a record and computes its counts.
func NewRunRecord(jobID string, scope, ruleIDs []string, createdAt time.Time, results []*engine.RuleResult, totals usage.Totals) *RunRecord {
	return &RunRecord{
		JobID:       jobID,
		Scope:       scope,
		RuleIDs:     ruleIDs,
		CreatedAt:   createdAt.UTC(),
		CompletedAt: time.Now().UTC(),
		Status:      "done",
		Results:     results,
		Counts:      CountResults(results),
		Usage:       totals.Rounded(),
	}
}

// Violations returns the results of the run that are violations.
func (r *RunRecord) Violations() []*engine.RuleResult {
	var out []*engine.RuleResult
	for _, res := range r.Results {
		if res.IsViolation() {
			out = append(out, res)
		}
	}
	return out
}

// Filter narrows a violation query. Empty fields match everything.
type Filter struct {
	SubjectID string
	RuleID    string
	Severity  rules.Severity
}

func (f Filter) matches(r *engine.RuleResult) bool {
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	if f.RuleID != "" && r.RuleID != f.RuleID {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	return true
}

// Summary aggregates a violation list.
type Summary struct {
	TotalViolations int            `json:"total_violations"`
	BySeverity      map[string]int `json:"by_severity"`
	UniqueSubjects  int            `json:"unique_subjects"`
	UniqueRules     int            `json:"unique_rules"`
}

// Summarize computes the summary of a violation list.
func Summarize(violations []*engine.RuleResult) Summary {
	s := Summary{
		TotalViolations: len(violations),
		BySeverity: map[string]int{
			string(rules.SeverityCritical): 0,
			string(rules.SeverityMajor):    0,
			string(rules.SeverityMinor):    0,
			string(rules.SeverityInfo):     0,
		},
	}
	subjects := make(map[string]bool)
	ruleIDs := make(map[string]bool)
	for _, v := range violations {
		s.BySeverity[string(v.Severity)]++
		subjects[v.SubjectID] = true
		ruleIDs[v.RuleID] = true
	}
	s.UniqueSubjects = len(subjects)
	s.UniqueRules = len(ruleIDs)
	return s
}

// sortViolations orders by severity (critical first), then subject, then
// rule.
func sortViolations(v []*engine.RuleResult) {
	sort.SliceStable(v, func(i, j int) bool {
		a, b := v[i], v[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra < rb
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		return a.RuleID < b.RuleID
	})
}
