// Package logging configures structured logging on top of log/slog.
//
// New builds a JSON or text handler, wraps it so records logged with a
// context include the job_id, subject_id, and rule_id stored by WithJobID,
// WithSubjectID, and WithRuleID, and optionally masks subject identifiers
// and API keys:
//
//	logger, err := logging.Setup(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithJobID(ctx, jobID)
//	slog.Default().InfoContext(ctx, "job started", "subjects", 12)
//
// Components derive their own logger with a component attribute:
//
//	logger := slog.Default().With("component", "engine.llm")
package logging
