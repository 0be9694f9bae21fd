package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/virupakshb/TrialMonitor/pkg/cli"
	"github.com/virupakshb/TrialMonitor/pkg/jobs"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

const progressInterval = 250 * time.Millisecond

var evaluateFlags struct {
	subjects        []string
	all             bool
	rules           []string
	phase           string
	output          string
	failOnViolation bool
	noProgress      bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate subjects against protocol rules",
	Long: `Run an evaluation job in-process and print its results.

The job is recorded in the configured ledger exactly as jobs submitted
through the API are, so later violation queries include it.

Examples:
  # Evaluate one subject with every active rule
  trialmonitor evaluate --subject 101-001

  # Evaluate two subjects with selected rules at screening
  trialmonitor evaluate --subject 101-001 --subject 101-002 \
    --rule EXCL-008 --rule INCL-001 --phase screening

  # Sweep the whole study and fail the build on any violation
  trialmonitor evaluate --all --fail-on-violation --output json`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringSliceVarP(&evaluateFlags.subjects, "subject", "s", nil, "subject id to evaluate (repeatable)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.all, "all", false, "evaluate every subject in the clinical store")
	evaluateCmd.Flags().StringSliceVarP(&evaluateFlags.rules, "rule", "r", nil, "rule id to evaluate (repeatable, default: all active rules)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.phase, "phase", "", "phase override (screening, baseline, treatment, follow-up, post_randomization)")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.output, "output", "o", "text", "output format: text, json, csv")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.failOnViolation, "fail-on-violation", false, "exit with code 2 when violations are found")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.noProgress, "no-progress", false, "do not report progress on stderr")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if len(evaluateFlags.subjects) == 0 && !evaluateFlags.all {
		return cli.NewConfigError("subject", "at least one --subject or --all is required")
	}
	if len(evaluateFlags.subjects) > 0 && evaluateFlags.all {
		return cli.NewConfigError("subject", "--subject and --all are mutually exclusive")
	}
	phase := rules.Phase(evaluateFlags.phase)
	if phase != "" && !phase.Valid() {
		return cli.NewConfigError("phase", fmt.Sprintf("unknown phase %q", evaluateFlags.phase))
	}
	if _, err := cli.ParseFormat(evaluateFlags.output); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cli.SetupSignalHandler()
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	defer a.close(context.Background())

	snap, err := a.manager.Submit(ctx, jobs.Request{
		SubjectIDs: evaluateFlags.subjects,
		RuleIDs:    evaluateFlags.rules,
		Phase:      phase,
		Trigger:    "cli",
	})
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	slog.Debug("evaluation job submitted", "job_id", snap.JobID, "total", snap.Total)

	var progress cli.ProgressReporter
	if !evaluateFlags.noProgress {
		progress = cli.NewProgressReporter(os.Stderr)
	}
	snap = followJob(ctx, a.manager, snap, progress)

	if snap.Status == jobs.StatusError {
		return cli.NewCommandError("evaluate", fmt.Errorf("job %s failed: %s", snap.JobID, snap.Error))
	}

	rec, err := a.ledger.Get(context.Background(), snap.JobID)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	if err := writeOutput(cmd.OutOrStdout(), evaluateFlags.output, runReport{rec}); err != nil {
		return err
	}

	if evaluateFlags.failOnViolation && rec.Counts.Violations > 0 {
		return cli.ErrViolationsFound
	}
	return nil
}

// followJob polls the job until it is terminal, reporting progress. A
// cancelled ctx cancels the job; its partial results are still recorded.
func followJob(ctx context.Context, m *jobs.Manager, snap *jobs.Snapshot, progress cli.ProgressReporter) *jobs.Snapshot {
	if progress != nil {
		progress.Start(snap.Total)
	}
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for !snap.Status.Terminal() {
		select {
		case <-done:
			if s, err := m.Cancel(snap.JobID); err == nil {
				snap = s
			}
			done = nil
		case <-ticker.C:
		}
		if s, err := m.Get(snap.JobID); err == nil {
			snap = s
		}
		if progress != nil {
			progress.Update(snap.Completed, snap.ViolationsSoFar)
		}
	}

	if progress != nil {
		if snap.Status == jobs.StatusError {
			progress.Error(fmt.Errorf("%s", snap.Error))
		} else {
			progress.Finish()
		}
	}
	return snap
}
