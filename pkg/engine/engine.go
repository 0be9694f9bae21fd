package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/providers"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
	"github.com/virupakshb/TrialMonitor/pkg/telemetry/logging"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

const tracerName = "github.com/virupakshb/TrialMonitor/pkg/engine"

// Observer is notified of every finished rule result. Implementations must
// be safe for concurrent use.
type Observer interface {
	RuleEvaluated(r *RuleResult)
}

// Config configures an Engine.
type Config struct {
	// RuleConcurrency is the number of rules evaluated at once for one
	// subject.
	// Default: 1
	RuleConcurrency int

	// LLM bounds tool-orchestrated evaluations.
	LLM LLMConfig
}

// Engine evaluates protocol rules for subjects. It is safe for concurrent
// use; per-job state lives in the arguments of each call.
type Engine struct {
	lib             clinical.Library
	deterministic   *DeterministicEvaluator
	llm             *LLMEvaluator
	ruleConcurrency int
	observers       []Observer
	tracer          trace.Tracer
	logger          *slog.Logger
}

// New creates an engine. provider may be nil, in which case LLM rules
// produce error results.
func New(lib clinical.Library, provider providers.Provider, cfg Config, observers ...Observer) *Engine {
	if cfg.RuleConcurrency <= 0 {
		cfg.RuleConcurrency = 1
	}
	e := &Engine{
		lib:             lib,
		deterministic:   NewDeterministicEvaluator(lib),
		ruleConcurrency: cfg.RuleConcurrency,
		observers:       observers,
		tracer:          otel.Tracer(tracerName),
		logger:          slog.Default().With("component", "engine"),
	}
	if provider != nil {
		e.llm = NewLLMEvaluator(provider, clinical.NewToolbox(lib), cfg.LLM)
	}
	return e
}

// Library returns the clinical library the engine reads from.
func (e *Engine) Library() clinical.Library {
	return e.lib
}

// SubjectRequest asks for a set of rules to be evaluated for one subject.
type SubjectRequest struct {
	JobID     string
	SubjectID string

	// Registry is the rule snapshot the job was submitted against.
	Registry *rules.Registry

	// Rules are evaluated in this order; results keep it.
	Rules []*rules.Rule

	// Phase overrides the phase derived from the subject's status.
	Phase rules.Phase

	// Meter accumulates reasoning-service usage. It may be nil.
	Meter *usage.Meter

	// Reasoning, if set, is held for the whole of each reasoning-service
	// evaluation. Deterministic rules never wait on it.
	Reasoning *semaphore.Weighted

	// OnResult, if set, is called as each rule finishes, possibly from
	// several goroutines at once.
	OnResult func(*RuleResult)
}

// EvaluateSubject evaluates every requested rule and returns one result per
// rule, in request order. A failing rule yields an error result and never
// stops the others. The returned error is reserved for cancellation.
func (e *Engine) EvaluateSubject(ctx context.Context, req SubjectRequest) ([]*RuleResult, error) {
	ctx = logging.WithSubjectID(logging.WithJobID(ctx, req.JobID), req.SubjectID)
	ctx, span := e.tracer.Start(ctx, "engine.EvaluateSubject", trace.WithAttributes(
		attribute.String("job.id", req.JobID),
		attribute.String("subject.id", req.SubjectID),
		attribute.Int("rules.count", len(req.Rules)),
	))
	defer span.End()

	results := make([]*RuleResult, len(req.Rules))

	subject, err := e.lib.Subject(ctx, req.SubjectID)
	if err != nil {
		e.logger.WarnContext(ctx, "subject lookup failed", "error", err)
		span.RecordError(err)
		phase := req.Phase
		if phase == "" {
			phase = rules.PhaseBaseline
		}
		for i, rule := range req.Rules {
			results[i] = e.observe(req, errorResult(rule, req.SubjectID, req.JobID, phase, err))
		}
		return results, nil
	}

	phase := req.Phase
	if phase == "" {
		phase = PhaseOf(subject)
	}
	span.SetAttributes(attribute.String("subject.phase", string(phase)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.ruleConcurrency)
	for i, rule := range req.Rules {
		g.Go(func() error {
			results[i] = e.observe(req, e.evaluateRule(gctx, req, rule, subject, phase))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// evaluateRule routes one rule to its evaluator.
func (e *Engine) evaluateRule(ctx context.Context, req SubjectRequest, rule *rules.Rule, subject *clinical.Subject, phase rules.Phase) *RuleResult {
	start := time.Now()
	ctx = logging.WithRuleID(ctx, rule.ID)
	ctx, span := e.tracer.Start(ctx, "engine.EvaluateRule", trace.WithAttributes(
		attribute.String("rule.id", rule.ID),
		attribute.String("rule.evaluation_type", string(rule.EvaluationType)),
	))
	defer span.End()

	fail := func(err error) *RuleResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.WarnContext(ctx, "rule evaluation failed", "error", err)
		return errorResult(rule, subject.ID, req.JobID, phase, err).finish(start)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if req.Registry != nil {
		if cfgErr := req.Registry.Invalid(rule.ID); cfgErr != nil {
			return fail(cfgErr)
		}
	}

	route, reason, err := RouteRule(rule, phase)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("rule.route", string(route)))
	if route == RouteNotApplicable {
		return notApplicable(rule, subject.ID, req.JobID, phase, reason).finish(start)
	}

	var tmpl *rules.Template
	if req.Registry != nil {
		t, ok := req.Registry.Template(rule.TemplateID)
		if !ok {
			return fail(&RuleConfigError{
				RuleID: rule.ID, Source: rule.Source, Field: "template_id",
				Message: fmt.Sprintf("unknown template %q", rule.TemplateID),
			})
		}
		tmpl = t
	}

	var r *RuleResult
	switch route {
	case RouteDeterministic:
		r = e.deterministic.Evaluate(ctx, rule, tmpl, subject, req.JobID, phase)
	case RouteLLMWithTools:
		if e.llm == nil {
			return fail(fmt.Errorf("rule %s needs the reasoning service, which is not configured", rule.ID))
		}
		if tmpl == nil {
			return fail(&RuleConfigError{RuleID: rule.ID, Source: rule.Source, Field: "template_id", Message: "template registry unavailable"})
		}
		if req.Reasoning != nil {
			if err := req.Reasoning.Acquire(ctx, 1); err != nil {
				return fail(err)
			}
			defer req.Reasoning.Release(1)
		}
		r = e.llm.Evaluate(ctx, rule, tmpl, subject, req.JobID, phase, req.Meter)
	}

	span.SetAttributes(
		attribute.String("rule.verdict", r.Verdict()),
		attribute.StringSlice("rule.tools_used", r.ToolsUsed),
	)
	if r.EvaluationMethod == MethodError {
		span.SetStatus(codes.Error, r.Error)
	}
	e.logger.DebugContext(ctx, "rule evaluated",
		"verdict", r.Verdict(), "method", r.EvaluationMethod, "duration_ms", r.ExecutionTimeMS)
	return r
}

func (e *Engine) observe(req SubjectRequest, r *RuleResult) *RuleResult {
	for _, o := range e.observers {
		o.RuleEvaluated(r)
	}
	if req.OnResult != nil {
		req.OnResult(r)
	}
	return r
}
