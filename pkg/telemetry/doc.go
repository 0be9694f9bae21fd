// Package telemetry groups the observability packages of TrialMonitor.
//
// # Components
//
//   - logging: slog setup with job, subject, and rule context fields and
//     optional subject redaction
//   - metrics: Prometheus collector fed by rule results and recorded runs
//   - tracing: OpenTelemetry spans for API requests, jobs, and subject
//     evaluations, exported over OTLP gRPC
//   - health: liveness, readiness, and version endpoints
//
// # Usage
//
//	cfg := config.GetConfig()
//	logger, _ := logging.Setup(logging.Config{Level: cfg.Telemetry.Logging.Level})
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng := engine.New(lib, provider, engine.Config{}, collector)
//
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing, Version)
//	defer tracer.Shutdown(context.Background())
//
// Subject identifiers are pseudonymous study codes, but deployments that
// forward logs outside the study team can mask them with
// telemetry.logging.redact_subjects.
package telemetry
