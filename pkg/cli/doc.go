/*
Package cli provides command-line helpers for the trialmonitor command.

Output Formatting:

Command results render as text, JSON, or CSV. Results implement Texter for
text output and Tabular for CSV:

	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Progress Reporting:

While a job runs, poll its snapshot and feed the reporter:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(snap.Total)
	progress.Update(snap.Completed, snap.ViolationsSoFar)
	progress.Finish()

Exit Codes:

ExitCode maps command errors to 0 (ok), 1 (error), or 2 (violations found
with --fail-on-violation).

Signal Handling:

	ctx := cli.SetupSignalHandler()
*/
package cli
