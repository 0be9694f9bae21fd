// Package notify publishes a summary of every recorded run to NATS so that
// downstream consumers (safety desks, dashboards) can react to new
// violations without polling the API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/tracing"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

// JobIDHeader carries the job id on every published message.
const JobIDHeader = "Trialmonitor-Job-Id"

// Publisher sends a message. *nats.Conn satisfies it.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// ViolationRef identifies one violation in a run summary.
type ViolationRef struct {
	RuleID         string `json:"rule_id"`
	SubjectID      string `json:"subject_id"`
	Severity       string `json:"severity"`
	ActionRequired string `json:"action_required,omitempty"`
	RequiresReview bool   `json:"requires_review"`
}

// RunSummary is the message published for a recorded run.
type RunSummary struct {
	JobID       string         `json:"job_id"`
	Status      string         `json:"status"`
	CompletedAt time.Time      `json:"completed_at"`
	Subjects    int            `json:"subjects"`
	Rules       int            `json:"rules"`
	Counts      ledger.Counts  `json:"counts"`
	Violations  []ViolationRef `json:"violations"`
	Usage       usage.Totals   `json:"usage"`
}

// Summarize builds the summary message of a run.
func Summarize(rec *ledger.RunRecord) RunSummary {
	s := RunSummary{
		JobID:       rec.JobID,
		Status:      rec.Status,
		CompletedAt: rec.CompletedAt,
		Subjects:    len(rec.Scope),
		Rules:       len(rec.RuleIDs),
		Counts:      rec.Counts,
		Violations:  []ViolationRef{},
		Usage:       rec.Usage,
	}
	for _, v := range rec.Violations() {
		s.Violations = append(s.Violations, ViolationRef{
			RuleID:         v.RuleID,
			SubjectID:      v.SubjectID,
			Severity:       string(v.Severity),
			ActionRequired: v.ActionRequired,
			RequiresReview: v.RequiresReview,
		})
	}
	return s
}

// Notifier publishes run summaries. It implements jobs.Listener.
type Notifier struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// New creates a notifier over an existing publisher.
func New(pub Publisher, subject string) *Notifier {
	return &Notifier{
		pub:     pub,
		subject: subject,
		logger:  slog.Default().With("component", "notify"),
	}
}

// Connect dials the NATS server named in cfg.
func Connect(cfg config.NotifyConfig) (*Notifier, error) {
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("trialmonitor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	n := New(conn, cfg.Subject)
	n.conn = conn
	n.logger.Info("NATS notifier connected", "url", conn.ConnectedUrlRedacted(), "subject", cfg.Subject)
	return n, nil
}

// RunRecorded publishes the summary of rec. The trace context of ctx is
// propagated in the message headers. Publishing is best effort: a failure is
// logged and never affects the job.
func (n *Notifier) RunRecorded(ctx context.Context, rec *ledger.RunRecord) {
	data, err := json.Marshal(Summarize(rec))
	if err != nil {
		n.logger.ErrorContext(ctx, "encode run summary", "job_id", rec.JobID, "error", err)
		return
	}
	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set(JobIDHeader, rec.JobID)
	tracing.Inject(ctx, http.Header(msg.Header))

	if err := n.pub.PublishMsg(msg); err != nil {
		n.logger.WarnContext(ctx, "publish run summary failed", "job_id", rec.JobID, "subject", n.subject, "error", err)
		return
	}
	n.logger.DebugContext(ctx, "run summary published", "job_id", rec.JobID, "violations", rec.Counts.Violations)
}

// Close drains the NATS connection, if the notifier owns one.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
