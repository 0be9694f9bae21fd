package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/virupakshb/TrialMonitor/pkg/cli"
	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/ledger/export"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

// writeOutput renders data in the format named by the --output flag.
func writeOutput(w io.Writer, format string, data any) error {
	f, err := cli.ParseFormat(format)
	if err != nil {
		return err
	}
	return cli.NewFormatter(f).FormatTo(w, data)
}

// resultRows renders results as CSV rows using the ledger export columns.
func resultRows(results []*engine.RuleResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, export.Row(r))
	}
	return rows
}

// writeResultTable prints one line per result.
func writeResultTable(w io.Writer, results []*engine.RuleResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBJECT\tRULE\tSEVERITY\tVERDICT\tMETHOD\tACTION\tDETAIL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SubjectID, r.RuleID, r.Severity, r.Verdict(), r.EvaluationMethod,
			dash(r.ActionRequired), truncate(detail(r), 80))
	}
	return tw.Flush()
}

func detail(r *engine.RuleResult) string {
	switch {
	case r.Error != "":
		return r.Error
	case len(r.Evidence) > 0:
		return strings.Join(r.Evidence, "; ")
	default:
		return r.Reasoning
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func writeUsage(w io.Writer, t usage.Totals) {
	fmt.Fprintf(w, "Reasoning usage: %d calls, %d input / %d output tokens, $%.4f\n",
		t.APICalls, t.InputTokens, t.OutputTokens, t.EstimatedCostUSD)
}

// runReport is the output of the evaluate command.
type runReport struct {
	*ledger.RunRecord
}

func (r runReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Job %s (%s): %d subjects x %d rules\n",
		r.JobID, r.Status, len(r.Scope), len(r.RuleIDs))
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
	fmt.Fprintln(w)
	if err := writeResultTable(w, r.Results); err != nil {
		return err
	}
	c := r.Counts
	fmt.Fprintf(w, "\nViolations: %d (critical %d, major %d, minor %d, info %d)\n",
		c.Violations, c.Critical, c.Major, c.Minor, c.Info)
	fmt.Fprintf(w, "Passed: %d  Inconclusive: %d  Not applicable: %d  Errors: %d\n",
		c.Passed, c.Inconclusive, c.NotApplicable, c.Errors)
	writeUsage(w, r.Usage)
	return nil
}

func (r runReport) Header() []string { return export.Header() }

func (r runReport) Rows() [][]string { return resultRows(r.Results) }

// violationReport is the output of the violations command.
type violationReport struct {
	Violations []*engine.RuleResult `json:"violations"`
	Summary    ledger.Summary       `json:"summary"`
}

func (v violationReport) WriteText(w io.Writer) error {
	if len(v.Violations) == 0 {
		_, err := fmt.Fprintln(w, "No current violations")
		return err
	}
	if err := writeResultTable(w, v.Violations); err != nil {
		return err
	}
	s := v.Summary
	_, err := fmt.Fprintf(w, "\n%d violations across %d subjects and %d rules (critical %d, major %d, minor %d, info %d)\n",
		s.TotalViolations, s.UniqueSubjects, s.UniqueRules,
		s.BySeverity["critical"], s.BySeverity["major"], s.BySeverity["minor"], s.BySeverity["info"])
	return err
}

func (v violationReport) Header() []string { return export.Header() }

func (v violationReport) Rows() [][]string { return resultRows(v.Violations) }
