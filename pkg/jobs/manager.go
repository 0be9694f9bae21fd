package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/logging"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/tracing"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

const tracerName = "github.com/virupakshb/TrialMonitor/pkg/jobs"

// Listener is told about every run record appended to the ledger.
type Listener interface {
	RunRecorded(ctx context.Context, rec *ledger.RunRecord)
}

// Config configures a Manager.
type Config struct {
	// SubjectConcurrency is the number of subjects of one job evaluated at
	// once. It is capped by MaxConcurrent.
	// Default: 2
	SubjectConcurrency int

	// MaxConcurrent caps reasoning-service evaluations in flight across all
	// jobs, counted per rule.
	// Default: 4
	MaxConcurrent int

	// MaxJobs is the number of finished jobs kept for status queries.
	// Default: 1000
	MaxJobs int
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.SubjectConcurrency <= 0 {
		c.SubjectConcurrency = 2
	}
	if c.SubjectConcurrency > c.MaxConcurrent {
		c.SubjectConcurrency = c.MaxConcurrent
	}
	if c.MaxJobs <= 0 {
		c.MaxJobs = 1000
	}
}

// Manager runs jobs and tracks their status.
type Manager struct {
	engine    *engine.Engine
	source    *rules.Source
	ledger    *ledger.Ledger
	session   *usage.Session
	cfg       Config
	sem       *semaphore.Weighted
	listeners []Listener
	tracer    trace.Tracer
	logger    *slog.Logger

	// baseCtx outlives job cancellation so in-flight subjects can finish.
	baseCtx context.Context
	abort   context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	busy    map[string]string
	closing bool
	now     func() time.Time
}

// NewManager creates a job manager.
func NewManager(eng *engine.Engine, source *rules.Source, l *ledger.Ledger, session *usage.Session, cfg Config, listeners ...Listener) *Manager {
	cfg.applyDefaults()
	if session == nil {
		session = usage.NewSession(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine:    eng,
		source:    source,
		ledger:    l,
		session:   session,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		listeners: listeners,
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default().With("component", "jobs"),
		baseCtx:   ctx,
		abort:     cancel,
		jobs:      make(map[string]*job),
		busy:      make(map[string]string),
		now:       time.Now,
	}
}

// Session returns the process-wide usage session jobs merge into.
func (m *Manager) Session() *usage.Session {
	return m.session
}

// Ledger returns the run ledger jobs are recorded in.
func (m *Manager) Ledger() *ledger.Ledger {
	return m.ledger
}

// Rules returns the current rule registry.
func (m *Manager) Rules() *rules.Registry {
	return m.source.Snapshot()
}

// Submit validates a request, reserves its subjects, and starts the job in
// the background.
func (m *Manager) Submit(ctx context.Context, req Request) (*Snapshot, error) {
	if req.Phase != "" && !req.Phase.Valid() {
		return nil, &RequestError{Field: "phase", Message: fmt.Sprintf("unknown phase %q", req.Phase)}
	}

	registry := m.source.Snapshot()
	selected, err := registry.Select(req.RuleIDs)
	if err != nil {
		return nil, &RequestError{Field: "rule_ids", Message: "cannot select rules", Cause: err}
	}
	if len(selected) == 0 {
		return nil, &RequestError{Field: "rule_ids", Message: "no active rules selected"}
	}

	subjects := dedupe(req.SubjectIDs)
	if len(subjects) == 0 {
		subjects, err = m.engine.Library().SubjectIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list subjects: %w", err)
		}
		if len(subjects) == 0 {
			return nil, &RequestError{Field: "subject_ids", Message: "clinical store has no subjects"}
		}
	}

	ruleIDs := make([]string, len(selected))
	for i, r := range selected {
		ruleIDs[i] = r.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return nil, ErrShuttingDown
	}
	for _, sid := range subjects {
		if holder, ok := m.busy[sid]; ok {
			return nil, &SubjectBusyError{SubjectID: sid, JobID: holder}
		}
	}

	dispatchCtx, cancel := context.WithCancel(m.baseCtx)
	j := &job{
		id:        uuid.NewString(),
		req:       req,
		subjects:  subjects,
		registry:  registry,
		selected:  selected,
		ruleIDs:   ruleIDs,
		dispatch:  dispatchCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		meter:     m.session.NewMeter(),
		link:      trace.LinkFromContext(ctx),
		status:    StatusQueued,
		createdAt: m.now().UTC(),
	}
	for _, sid := range subjects {
		m.busy[sid] = j.id
	}
	m.jobs[j.id] = j
	m.order = append(m.order, j.id)
	m.prune()

	m.wg.Add(1)
	go m.run(j)

	m.logger.Info("job submitted",
		"job_id", j.id,
		"subjects", len(subjects),
		"rules", len(selected),
		"trigger", req.Trigger,
	)
	return j.snapshot(), nil
}

// Get returns the current snapshot of a job.
func (m *Manager) Get(jobID string) (*Snapshot, error) {
	j, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return j.snapshot(), nil
}

// List returns snapshots of known jobs, newest first.
func (m *Manager) List() []*Snapshot {
	m.mu.Lock()
	ids := slices.Clone(m.order)
	m.mu.Unlock()

	out := make([]*Snapshot, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if j, err := m.lookup(ids[i]); err == nil {
			out = append(out, j.snapshot())
		}
	}
	return out
}

// InFlight returns the number of queued or running jobs.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	jobs := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	n := 0
	for _, j := range jobs {
		if !j.finished() {
			n++
		}
	}
	return n
}

// Wait blocks until the job finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, jobID string) (*Snapshot, error) {
	j, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// Cancel stops dispatching further subjects of a job. Finished jobs are
// left unchanged.
func (m *Manager) Cancel(jobID string) (*Snapshot, error) {
	j, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}
	if j.requestCancel() {
		m.logger.Info("job cancellation requested", "job_id", jobID)
	}
	return j.snapshot(), nil
}

// Shutdown stops accepting jobs, cancels dispatch of running ones, and waits
// for in-flight subjects to be recorded. When ctx expires first, in-flight
// evaluations are aborted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	running := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		running = append(running, j)
	}
	m.mu.Unlock()

	for _, j := range running {
		j.requestCancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.abort()
		return nil
	case <-ctx.Done():
		m.abort()
		<-done
		return ctx.Err()
	}
}

func (m *Manager) lookup(jobID string) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// prune forgets the oldest finished jobs beyond MaxJobs. Caller holds m.mu.
func (m *Manager) prune() {
	excess := len(m.order) - m.cfg.MaxJobs
	if excess <= 0 {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if excess > 0 && m.jobs[id].finished() {
			delete(m.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func (m *Manager) release(j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sid := range j.subjects {
		if m.busy[sid] == j.id {
			delete(m.busy, sid)
		}
	}
}

// run executes a job. Subjects are dispatched in submission order; results
// are collected by position so the run record keeps that order regardless
// of completion order.
func (m *Manager) run(j *job) {
	defer m.wg.Done()
	defer close(j.done)
	defer m.release(j)
	defer j.cancel()

	ctx := logging.WithJobID(m.baseCtx, j.id)
	ctx, span := m.tracer.Start(ctx, "jobs.Run", trace.WithLinks(j.link))
	defer span.End()
	tracing.SetJobAttributes(span, j.id, j.req.Trigger, len(j.subjects), len(j.selected))

	j.start(m.now().UTC())

	if err := m.engine.Library().Ping(ctx); err != nil {
		err = fmt.Errorf("clinical data store unreachable: %w", err)
		tracing.SetError(span, err)
		m.logger.ErrorContext(ctx, "job failed", "error", err)
		j.finish(StatusError, err.Error(), m.now().UTC())
		return
	}

	perSubject := make([][]*engine.RuleResult, len(j.subjects))

	var g errgroup.Group
	g.SetLimit(m.cfg.SubjectConcurrency)
	for i, sid := range j.subjects {
		if j.dispatch.Err() != nil {
			break
		}
		g.Go(func() error {
			if j.dispatch.Err() != nil {
				return nil
			}
			results, err := m.engine.EvaluateSubject(ctx, engine.SubjectRequest{
				JobID:     j.id,
				SubjectID: sid,
				Registry:  j.registry,
				Rules:     j.selected,
				Phase:     j.req.Phase,
				Meter:     j.meter,
				Reasoning: m.sem,
				OnResult:  j.progress,
			})
			if err != nil {
				m.logger.WarnContext(ctx, "subject evaluation interrupted", "subject_id", sid, "error", err)
			}
			perSubject[i] = results
			return nil
		})
	}
	_ = g.Wait()

	var results []*engine.RuleResult
	for _, rs := range perSubject {
		results = append(results, rs...)
	}

	status := StatusDone
	if j.cancelRequested() {
		status = StatusCancelled
	}

	totals := j.meter.Totals()
	m.session.Merge(totals)

	rec := ledger.NewRunRecord(j.id, j.subjects, j.ruleIDs, j.createdAt, results, totals)
	rec.Status = string(status)
	if err := m.ledger.Append(ctx, rec); err != nil {
		tracing.SetError(span, err)
		m.logger.ErrorContext(ctx, "run record not stored", "error", err)
		j.finish(StatusError, err.Error(), m.now().UTC())
		return
	}

	for _, l := range m.listeners {
		l.RunRecorded(ctx, rec)
	}

	tracing.SetJobOutcome(span, string(status), rec.Counts.Violations)
	tracing.SetUsageAttributes(span, totals.APICalls, totals.InputTokens, totals.OutputTokens, rec.Usage.EstimatedCostUSD)
	m.logger.InfoContext(ctx, "job finished",
		"status", status,
		"results", len(results),
		"violations", rec.Counts.Violations,
		"api_calls", totals.APICalls,
		"cost_usd", rec.Usage.EstimatedCostUSD,
	)
	j.finish(status, "", m.now().UTC())
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// job is the mutable state behind a Snapshot.
type job struct {
	id       string
	req      Request
	subjects []string
	registry *rules.Registry
	selected []*rules.Rule
	ruleIDs  []string
	dispatch context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	meter    *usage.Meter
	link     trace.Link

	mu          sync.Mutex
	status      Status
	cancelled   bool
	completed   int
	violations  int
	err         string
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
}

func (j *job) start(at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusRunning
	j.startedAt = at
}

func (j *job) progress(r *engine.RuleResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.completed++
	if r.IsViolation() {
		j.violations++
	}
}

func (j *job) finish(status Status, errMsg string, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.err = errMsg
	j.completedAt = at
}

func (j *job) finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.Terminal()
}

// requestCancel marks the job cancelled and stops dispatch. It reports
// whether the request had any effect.
func (j *job) requestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() || j.cancelled {
		return false
	}
	j.cancelled = true
	j.cancel()
	return true
}

func (j *job) cancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

func (j *job) snapshot() *Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	total := len(j.subjects) * len(j.selected)
	return &Snapshot{
		JobID:           j.id,
		Status:          j.status,
		SubjectIDs:      slices.Clone(j.subjects),
		RuleIDs:         slices.Clone(j.ruleIDs),
		Phase:           j.req.Phase,
		Trigger:         j.req.Trigger,
		Total:           total,
		Completed:       j.completed,
		ProgressPct:     progressPct(j.completed, total),
		ViolationsSoFar: j.violations,
		Error:           j.err,
		CreatedAt:       j.createdAt,
		StartedAt:       timePtr(j.startedAt),
		CompletedAt:     timePtr(j.completedAt),
		Usage:           j.meter.Totals().Rounded(),
	}
}

// IsBusy reports whether err is a subject-busy rejection.
func IsBusy(err error) bool {
	return errors.Is(err, ErrSubjectBusy)
}
