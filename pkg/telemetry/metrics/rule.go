package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/engine"
)

// RuleMetrics tracks rule evaluations.
//
// Metrics:
//   - trialmonitor_rule_evaluations_total: results by rule, method, verdict
//   - trialmonitor_rule_evaluation_duration_seconds: duration by method
//   - trialmonitor_tool_calls_total: tool executions by tool name
type RuleMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	toolCallsTotal     *prometheus.CounterVec
}

// NewRuleMetrics creates and registers rule metrics.
func NewRuleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RuleMetrics {
	rm := &RuleMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rule_evaluations_total",
				Help:      "Rule evaluations by rule, method, and verdict",
			},
			[]string{"rule_id", "method", "verdict"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "rule_evaluation_duration_seconds",
				Help:      "Duration of rule evaluations in seconds",
				// Deterministic checks take milliseconds, tool-orchestrated
				// ones up to several minutes.
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"method"},
		),

		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "tool_calls_total",
				Help:      "Clinical data tool executions by tool",
			},
			[]string{"tool"},
		),
	}

	registry.MustRegister(rm.evaluationsTotal, rm.evaluationDuration, rm.toolCallsTotal)
	return rm
}

// RecordResult records one rule result under ruleID.
func (rm *RuleMetrics) RecordResult(ruleID string, r *engine.RuleResult) {
	method := string(r.EvaluationMethod)
	rm.evaluationsTotal.WithLabelValues(ruleID, method, r.Verdict()).Inc()
	rm.evaluationDuration.WithLabelValues(method).Observe((time.Duration(r.ExecutionTimeMS) * time.Millisecond).Seconds())
	for _, tool := range r.ToolsUsed {
		rm.toolCallsTotal.WithLabelValues(tool).Inc()
	}
}
