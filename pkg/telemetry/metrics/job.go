package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

// JobMetrics tracks evaluation jobs.
//
// Metrics:
//   - trialmonitor_jobs_total: recorded runs by final status
//   - trialmonitor_violations_total: violations found by severity
//   - trialmonitor_job_duration_seconds: wall-clock job duration
type JobMetrics struct {
	jobsTotal       *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	jobDuration     prometheus.Histogram
}

// NewJobMetrics creates and registers job metrics.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "jobs_total",
				Help:      "Recorded evaluation runs by status",
			},
			[]string{"status"},
		),

		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "violations_total",
				Help:      "Protocol violations found by severity",
			},
			[]string{"severity"},
		),

		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall-clock duration of evaluation jobs in seconds",
				Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600},
			},
		),
	}

	registry.MustRegister(jm.jobsTotal, jm.violationsTotal, jm.jobDuration)
	return jm
}

// RecordRun records a finished run.
func (jm *JobMetrics) RecordRun(rec *ledger.RunRecord) {
	jm.jobsTotal.WithLabelValues(rec.Status).Inc()
	jm.jobDuration.Observe(rec.CompletedAt.Sub(rec.CreatedAt).Seconds())

	for sev, n := range map[rules.Severity]int{
		rules.SeverityCritical: rec.Counts.Critical,
		rules.SeverityMajor:    rec.Counts.Major,
		rules.SeverityMinor:    rec.Counts.Minor,
		rules.SeverityInfo:     rec.Counts.Info,
	} {
		if n > 0 {
			jm.violationsTotal.WithLabelValues(string(sev)).Add(float64(n))
		}
	}
}
