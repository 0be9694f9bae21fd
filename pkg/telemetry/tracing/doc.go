// Package tracing provides OpenTelemetry distributed tracing for TrialMonitor.
//
// # Overview
//
// A monitoring job produces a span tree rooted at the HTTP request (or the
// scheduler tick) that submitted it:
//
//	POST /api/jobs
//	└── jobs.Run                  job.id, job.subjects, job.rules
//	    └── engine.EvaluateSubject subject.id
//	        └── engine.EvaluateRule rule.id, rule.route, rule.verdict
//
// Spans are exported over OTLP gRPC. The engine and job manager obtain their
// tracers from the global provider, which New installs when tracing is
// enabled; with tracing disabled every span is a noop.
//
// # Sampling
//
//   - always: sample every trace
//   - never: sample nothing
//   - ratio: sample a fraction of traces by trace id
//
// All samplers respect the parent span's decision.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	handler = tracer.HTTPMiddleware(handler)
package tracing
