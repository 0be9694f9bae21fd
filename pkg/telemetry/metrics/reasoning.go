package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/usage"
)

// ReasoningMetrics tracks reasoning-service consumption.
//
// Metrics:
//   - trialmonitor_reasoning_calls_total: completion requests
//   - trialmonitor_reasoning_tokens_total: tokens by direction (input, output)
//   - trialmonitor_reasoning_cost_usd_total: estimated cost in USD
//   - trialmonitor_llm_rule_evaluations_total: tool-orchestrated evaluations
type ReasoningMetrics struct {
	callsTotal       prometheus.Counter
	tokensTotal      *prometheus.CounterVec
	costTotal        prometheus.Counter
	evaluationsTotal prometheus.Counter
}

// NewReasoningMetrics creates and registers reasoning metrics.
func NewReasoningMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ReasoningMetrics {
	rm := &ReasoningMetrics{
		callsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reasoning_calls_total",
			Help:      "Reasoning-service completion requests",
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reasoning_tokens_total",
			Help:      "Reasoning-service tokens by direction",
		}, []string{"direction"}),
		costTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reasoning_cost_usd_total",
			Help:      "Estimated reasoning-service cost in USD",
		}),
		evaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "llm_rule_evaluations_total",
			Help:      "Tool-orchestrated rule evaluations",
		}),
	}

	registry.MustRegister(rm.callsTotal, rm.tokensTotal, rm.costTotal, rm.evaluationsTotal)
	return rm
}

// RecordUsage adds a run's usage totals.
func (rm *ReasoningMetrics) RecordUsage(t usage.Totals) {
	rm.callsTotal.Add(float64(t.APICalls))
	rm.tokensTotal.WithLabelValues("input").Add(float64(t.InputTokens))
	rm.tokensTotal.WithLabelValues("output").Add(float64(t.OutputTokens))
	rm.costTotal.Add(t.EstimatedCostUSD)
	rm.evaluationsTotal.Add(float64(t.LLMRuleEvaluations))
}
