package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by the HTTP, job and engine spans.
const (
	AttrJobID         = "job.id"
	AttrJobStatus     = "job.status"
	AttrJobTrigger    = "job.trigger"
	AttrJobSubjects   = "job.subjects"
	AttrJobRules      = "job.rules"
	AttrJobViolations = "job.violations"

	AttrSubjectID = "subject.id"
	AttrRuleID    = "rule.id"

	AttrReasoningCalls        = "reasoning.calls"
	AttrReasoningInputTokens  = "reasoning.tokens.input"
	AttrReasoningOutputTokens = "reasoning.tokens.output"
	AttrReasoningCost         = "reasoning.cost_usd"

	AttrHTTPMethod   = "http.method"
	AttrHTTPRoute    = "http.route"
	AttrErrorMessage = "error.message"
)

// SetJobAttributes records the scope of a monitoring job.
func SetJobAttributes(span trace.Span, jobID, trigger string, subjects, rules int) {
	span.SetAttributes(
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrJobTrigger, trigger),
		attribute.Int(AttrJobSubjects, subjects),
		attribute.Int(AttrJobRules, rules),
	)
}

// SetJobOutcome records how a job finished.
func SetJobOutcome(span trace.Span, status string, violations int) {
	span.SetAttributes(
		attribute.String(AttrJobStatus, status),
		attribute.Int(AttrJobViolations, violations),
	)
}

// SetUsageAttributes records reasoning-service consumption for a span.
func SetUsageAttributes(span trace.Span, calls, inputTokens, outputTokens int64, cost float64) {
	span.SetAttributes(
		attribute.Int64(AttrReasoningCalls, calls),
		attribute.Int64(AttrReasoningInputTokens, inputTokens),
		attribute.Int64(AttrReasoningOutputTokens, outputTokens),
		attribute.Float64(AttrReasoningCost, cost),
	)
}

// SetHTTPAttributes records the request line of an API call.
func SetHTTPAttributes(span trace.Span, method, route string) {
	span.SetAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
	)
}
