package jobs

import (
	"math"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// Request describes a job.
type Request struct {
	// SubjectIDs is the evaluation scope in submission order. Empty means
	// every subject in the clinical store.
	SubjectIDs []string `json:"subject_ids,omitempty"`

	// RuleIDs selects rules in evaluation order. Empty means every active
	// rule.
	RuleIDs []string `json:"rule_ids,omitempty"`

	// Phase overrides the phase derived from each subject's status.
	Phase rules.Phase `json:"phase,omitempty"`

	// Trigger records who submitted the job ("api", "cli", "schedule").
	Trigger string `json:"trigger,omitempty"`
}

// Snapshot is a point-in-time view of a job.
type Snapshot struct {
	JobID      string      `json:"job_id"`
	Status     Status      `json:"status"`
	SubjectIDs []string    `json:"subject_ids"`
	RuleIDs    []string    `json:"rule_ids"`
	Phase      rules.Phase `json:"phase,omitempty"`
	Trigger    string      `json:"trigger,omitempty"`

	// Total is the number of (subject, rule) evaluations in scope.
	Total           int     `json:"total"`
	Completed       int     `json:"completed"`
	ProgressPct     float64 `json:"progress_pct"`
	ViolationsSoFar int     `json:"violations_so_far"`

	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Usage       usage.Totals `json:"usage"`
}

// RecordSnapshot describes a finished job from its run record, for jobs the
// manager no longer holds.
func RecordSnapshot(rec *ledger.RunRecord) *Snapshot {
	total := len(rec.Scope) * len(rec.RuleIDs)
	return &Snapshot{
		JobID:           rec.JobID,
		Status:          Status(rec.Status),
		SubjectIDs:      rec.Scope,
		RuleIDs:         rec.RuleIDs,
		Total:           total,
		Completed:       len(rec.Results),
		ProgressPct:     progressPct(len(rec.Results), total),
		ViolationsSoFar: rec.Counts.Violations,
		Error:           rec.Error,
		CreatedAt:       rec.CreatedAt,
		CompletedAt:     timePtr(rec.CompletedAt),
		Usage:           rec.Usage,
	}
}

func progressPct(completed, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(completed)*1000/float64(total)) / 10
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
