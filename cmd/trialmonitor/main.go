// TrialMonitor evaluates clinical-trial subject records against protocol
// rules and keeps an append-only ledger of every evaluation run.
//
// It runs as an HTTP API server or as a one-shot command line tool:
//   - Deterministic and tool-orchestrated (reasoning service) rule evaluation
//   - Batch jobs over single subjects, subject lists, or the whole study
//   - Latest-wins violation queries over the run ledger
//   - Reasoning-service token and cost accounting
//
// Usage:
//
//	# Start the API server
//	trialmonitor serve --config configs/trialmonitor.yaml
//
//	# Evaluate one subject locally
//	trialmonitor evaluate --subject 101-001
//
//	# List current critical violations as CSV
//	trialmonitor violations --severity critical --output csv
//
//	# Check rule definitions
//	trialmonitor rules validate
package main

import "os"

func main() {
	os.Exit(Execute())
}
