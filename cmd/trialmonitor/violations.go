package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/virupakshb/TrialMonitor/pkg/cli"
	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

var violationsFlags struct {
	subject  string
	rule     string
	severity string
	limit    int
	output   string
}

var violationsCmd = &cobra.Command{
	Use:   "violations",
	Short: "List current violations from the run ledger",
	Long: `List the current violations derived from the run ledger.

For every (rule, subject) pair only the latest recorded result counts, so a
violation that a later run no longer finds is not listed. Violations are
ordered by severity, then subject, then rule.

Examples:
  # All current violations
  trialmonitor violations

  # Critical violations of one subject as CSV
  trialmonitor violations --subject 101-001 --severity critical --output csv`,
	RunE: runViolations,
}

func init() {
	rootCmd.AddCommand(violationsCmd)

	violationsCmd.Flags().StringVar(&violationsFlags.subject, "subject", "", "filter by subject id")
	violationsCmd.Flags().StringVar(&violationsFlags.rule, "rule", "", "filter by rule id")
	violationsCmd.Flags().StringVar(&violationsFlags.severity, "severity", "", "filter by severity (critical, major, minor, info)")
	violationsCmd.Flags().IntVar(&violationsFlags.limit, "limit", 0, "maximum number of violations (0 for all)")
	violationsCmd.Flags().StringVarP(&violationsFlags.output, "output", "o", "text", "output format: text, json, csv")
}

func runViolations(cmd *cobra.Command, args []string) error {
	if _, err := cli.ParseFormat(violationsFlags.output); err != nil {
		return err
	}
	if violationsFlags.limit < 0 {
		return cli.NewConfigError("limit", "must be >= 0")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newLedgerApp(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("violations", err)
	}
	defer a.close(ctx)

	report, err := queryViolations(a.ledger, ledger.Filter{
		SubjectID: violationsFlags.subject,
		RuleID:    violationsFlags.rule,
		Severity:  rules.Severity(violationsFlags.severity),
	}, violationsFlags.limit)
	if err != nil {
		return cli.NewCommandError("violations", err)
	}
	return writeOutput(cmd.OutOrStdout(), violationsFlags.output, report)
}

// queryViolations reads the current violations. The summary covers every
// match, the list at most limit of them.
func queryViolations(l *ledger.Ledger, f ledger.Filter, limit int) (violationReport, error) {
	v, summary, err := l.Violations(f)
	if err != nil {
		return violationReport{}, err
	}
	if v == nil {
		v = []*engine.RuleResult{}
	}
	if limit > 0 && len(v) > limit {
		v = v[:limit]
	}
	return violationReport{Violations: v, Summary: summary}, nil
}
