package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/tracing"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

type fakePublisher struct {
	subject string
	data    []byte
	header  nats.Header
	err     error
}

func (p *fakePublisher) PublishMsg(msg *nats.Msg) error {
	p.subject, p.data, p.header = msg.Subject, msg.Data, msg.Header
	return p.err
}

func run() *ledger.RunRecord {
	yes, no := true, false
	results := []*engine.RuleResult{
		{RuleID: "EXCL-008", SubjectID: "101-001", Violated: &yes, Severity: rules.SeverityCritical,
			EvaluationMethod: engine.MethodDeterministic, ActionRequired: rules.ActionScreenFailure},
		{RuleID: "INCL-001", SubjectID: "101-001", Violated: &no, Severity: rules.SeverityMajor,
			EvaluationMethod: engine.MethodDeterministic},
	}
	return ledger.NewRunRecord("job-1", []string{"101-001"}, []string{"EXCL-008", "INCL-001"},
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), results, usage.Totals{})
}

func TestNotifier_RunRecorded(t *testing.T) {
	pub := &fakePublisher{}
	New(pub, "trialmonitor.runs.completed").RunRecorded(context.Background(), run())

	if pub.subject != "trialmonitor.runs.completed" {
		t.Errorf("subject = %q", pub.subject)
	}
	var got RunSummary
	if err := json.Unmarshal(pub.data, &got); err != nil {
		t.Fatalf("published payload does not decode: %v", err)
	}
	if got.JobID != "job-1" || got.Subjects != 1 || got.Rules != 2 || got.Counts.Violations != 1 {
		t.Errorf("summary = %+v", got)
	}
	if len(got.Violations) != 1 || got.Violations[0].ActionRequired != rules.ActionScreenFailure {
		t.Errorf("violations = %+v", got.Violations)
	}
}

func TestNotifier_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	pub := &fakePublisher{}
	New(pub, "runs").RunRecorded(ctx, run())

	h := http.Header(pub.header)
	if got := h.Get(JobIDHeader); got != "job-1" {
		t.Errorf("%s = %q", JobIDHeader, got)
	}
	tp := h.Get("traceparent")
	if !tracing.ValidateTraceParent(tp) {
		t.Fatalf("traceparent = %q", tp)
	}
	if want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"; tp != want {
		t.Errorf("traceparent = %q, want %q", tp, want)
	}
}

func TestNotifier_PublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	New(pub, "runs").RunRecorded(context.Background(), run())
	if pub.data == nil {
		t.Error("publish was not attempted")
	}
}

func TestNotifier_CloseWithoutConnection(t *testing.T) {
	if err := New(&fakePublisher{}, "runs").Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
