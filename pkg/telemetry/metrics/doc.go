// Package metrics provides Prometheus metrics for the monitoring engine.
//
// # Metrics Categories
//
//   - Rule Metrics: evaluations by rule, method, and verdict; evaluation
//     duration; tool calls
//   - Job Metrics: finished jobs by status, violations by severity, jobs in
//     flight
//   - Reasoning Metrics: reasoning-service calls, tokens, and estimated cost
//
// # Usage
//
// The Collector is wired as an engine observer and as a job listener, so it
// sees every rule result and every recorded run without extra calls:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng := engine.New(lib, provider, engineCfg, collector)
//	manager := jobs.NewManager(eng, source, ledger, session, jobsCfg, collector)
//	collector.TrackInFlight(manager.InFlight)
//	mux.Handle("/metrics", collector.Handler())
//
// # Prometheus Endpoint
//
//	# HELP trialmonitor_rule_evaluations_total Rule evaluations by rule, method, and verdict
//	# TYPE trialmonitor_rule_evaluations_total counter
//	trialmonitor_rule_evaluations_total{method="deterministic",rule_id="EXCL-008",verdict="violation"} 3
//
// # Cardinality Management
//
// Rule ids are the only unbounded label. Once more than 10,000 distinct
// label sets have been seen, new rule ids are recorded as "other".
package metrics
