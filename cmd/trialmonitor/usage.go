package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/virupakshb/TrialMonitor/pkg/cli"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

var usageFlags struct {
	subject string
	rule    string
	limit   int
	output  string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report reasoning-service usage recorded in the ledger",
	Long: `Report token consumption and estimated cost of recorded runs.

The API server reports the usage of its own process at /api/usage; this
command totals the usage stored with each run in the ledger, newest runs
first.

Examples:
  trialmonitor usage
  trialmonitor usage --subject 101-001 --output json`,
	RunE: runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageFlags.subject, "subject", "", "only runs that evaluated the subject")
	usageCmd.Flags().StringVar(&usageFlags.rule, "rule", "", "only runs that evaluated the rule")
	usageCmd.Flags().IntVar(&usageFlags.limit, "limit", 100, "number of most recent runs to include")
	usageCmd.Flags().StringVarP(&usageFlags.output, "output", "o", "text", "output format: text, json, csv")
}

func runUsage(cmd *cobra.Command, args []string) error {
	if _, err := cli.ParseFormat(usageFlags.output); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newLedgerApp(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}
	defer a.close(ctx)

	runs, err := a.ledger.Runs(ctx, ledger.ListQuery{
		SubjectID: usageFlags.subject,
		RuleID:    usageFlags.rule,
		Limit:     usageFlags.limit,
	})
	if err != nil {
		return cli.NewCommandError("usage", err)
	}
	return writeOutput(cmd.OutOrStdout(), usageFlags.output, newUsageReport(runs))
}

// usageEntry is the usage of one recorded run.
type usageEntry struct {
	JobID       string       `json:"job_id"`
	CompletedAt time.Time    `json:"completed_at"`
	Usage       usage.Totals `json:"usage"`
}

type usageReport struct {
	Runs  []usageEntry `json:"runs"`
	Total usage.Totals `json:"total"`
}

func newUsageReport(runs []*ledger.RunRecord) usageReport {
	r := usageReport{Runs: make([]usageEntry, 0, len(runs))}
	for _, rec := range runs {
		r.Runs = append(r.Runs, usageEntry{JobID: rec.JobID, CompletedAt: rec.CompletedAt, Usage: rec.Usage})
		r.Total = r.Total.Add(rec.Usage)
	}
	r.Total = r.Total.Rounded()
	return r
}

func (r usageReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Runs: %d\n", len(r.Runs))
	fmt.Fprintf(w, "LLM rule evaluations: %d\n", r.Total.LLMRuleEvaluations)
	writeUsage(w, r.Total)
	return nil
}

func (r usageReport) Header() []string {
	return []string{"job_id", "completed_at", "api_calls", "input_tokens", "output_tokens", "llm_rule_evaluations", "estimated_cost_usd"}
}

func (r usageReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Runs))
	for _, u := range r.Runs {
		rows = append(rows, []string{
			u.JobID,
			u.CompletedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(u.Usage.APICalls, 10),
			strconv.FormatInt(u.Usage.InputTokens, 10),
			strconv.FormatInt(u.Usage.OutputTokens, 10),
			strconv.FormatInt(u.Usage.LLMRuleEvaluations, 10),
			strconv.FormatFloat(u.Usage.EstimatedCostUSD, 'f', 6, 64),
		})
	}
	return rows
}
