package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
)

// Collector owns every metric of the service. It implements
// engine.Observer and jobs.Listener.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	ruleMetrics      *RuleMetrics
	jobMetrics       *JobMetrics
	reasoningMetrics *ReasoningMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registering into registry, or into a new
// registry when registry is nil.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "trialmonitor"
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		ruleMetrics:        NewRuleMetrics(cfg, registry),
		jobMetrics:         NewJobMetrics(cfg, registry),
		reasoningMetrics:   NewReasoningMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(10000),
	}
}

// RuleEvaluated records one rule result.
func (c *Collector) RuleEvaluated(r *engine.RuleResult) {
	if !c.config.Enabled {
		return
	}

	ruleID := r.RuleID
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("rule:%s:%s:%s", ruleID, r.EvaluationMethod, r.Verdict())) {
		ruleID = "other"
	}
	c.ruleMetrics.RecordResult(ruleID, r)
}

// TrackInFlight exposes the number of running jobs as
// trialmonitor_jobs_in_flight, read from fn at scrape time.
func (c *Collector) TrackInFlight(fn func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Name:      "jobs_in_flight",
			Help:      "Evaluation jobs queued or running",
		},
		func() float64 { return float64(fn()) },
	))
}

// RunRecorded records a finished run.
func (c *Collector) RunRecorded(ctx context.Context, rec *ledger.RunRecord) {
	if !c.config.Enabled {
		return
	}
	c.jobMetrics.RecordRun(rec)
	c.reasoningMetrics.RecordUsage(rec.Usage)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label set may be recorded: it is already known
// or the limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
