// Package jobs runs evaluation jobs asynchronously and records their
// outcome in the run ledger.
//
// A job evaluates a rule selection against one subject, a subject set, or
// every subject in the clinical store. Submit returns at once with the job
// id; callers poll Get (or block in Wait) for status and progress:
//
//	snap, err := manager.Submit(ctx, jobs.Request{SubjectIDs: []string{"101-001"}})
//	if err != nil {
//	    return err
//	}
//	final, err := manager.Wait(ctx, snap.JobID)
//
// # Concurrency
//
// Subjects of a job are evaluated with bounded parallelism. Every subject
// evaluation also holds one slot of a semaphore shared by all jobs, sized to
// the reasoning service's concurrency limit. A subject can belong to at most
// one in-flight job; overlapping submissions fail with ErrSubjectBusy.
//
// # Cancellation
//
// Cancel is best effort: no further subjects are dispatched, while subjects
// already being evaluated run to completion and are recorded. The run record
// of a cancelled job carries status "cancelled".
//
// # Scheduling
//
// Scheduler submits a study-wide sweep on a cron schedule.
package jobs
