// Package ledger persists evaluation runs and derives the current violation
// view from them.
//
// # Run Records
//
// A RunRecord holds every RuleResult of one job in submission order, with
// per-severity violation counts and the job's reasoning-service usage.
// Records are append-only: a job id can be written once and is never
// updated.
//
// # Current Violations
//
// The Index maps each (subject_id, rule_id) pair to the result from the most
// recent run that evaluated it and surfaces the pair only while that result
// is a violation ("latest wins"). The index is derived: it can always be
// rebuilt by replaying the stored runs in append order.
//
// # Storage Backends
//
//   - SQLite: durable storage with WAL mode, indexed by job, subject, and rule
//   - Memory: in-process storage for tests and one-shot CLI runs
//
// # Basic Usage
//
//	store, err := ledger.NewSQLiteStorage(&ledger.SQLiteConfig{Path: "data/ledger.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l, err := ledger.Open(ctx, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Close()
//
//	if err := l.Append(ctx, record); err != nil {
//	    log.Fatal(err)
//	}
//	violations, summary := l.Violations(ledger.Filter{Severity: "critical"})
package ledger
