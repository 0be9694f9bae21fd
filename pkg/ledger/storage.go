package ledger

import "context"

// ListQuery selects stored runs. Empty fields match everything.
type ListQuery struct {
	// SubjectID matches runs that evaluated the subject.
	SubjectID string

	// RuleID matches runs that evaluated the rule.
	RuleID string

	// Limit caps the number of runs returned, newest first.
	// Default: 100
	Limit int
}

// Storage is an append-only store of run records. Implementations must be
// safe for concurrent use.
type Storage interface {
	// Append stores a new record and assigns its Seq. It returns
	// ErrDuplicate if the job id is already stored.
	Append(ctx context.Context, record *RunRecord) error

	// Get returns the record of a job or ErrNotFound.
	Get(ctx context.Context, jobID string) (*RunRecord, error)

	// List returns matching records, newest first.
	List(ctx context.Context, query ListQuery) ([]*RunRecord, error)

	// Scan calls fn for every record in append order.
	Scan(ctx context.Context, fn func(*RunRecord) error) error

	// Close releases the storage.
	Close() error
}

const defaultListLimit = 100

// resultKey identifies a result within a run.
type resultKey struct {
	ruleID    string
	subjectID string
}
