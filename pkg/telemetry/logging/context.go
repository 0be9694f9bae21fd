package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// JobIDKey is the context key for evaluation job IDs.
	JobIDKey contextKey = "job_id"

	// SubjectIDKey is the context key for trial subject IDs.
	SubjectIDKey contextKey = "subject_id"

	// RuleIDKey is the context key for rule IDs.
	RuleIDKey contextKey = "rule_id"
)

// WithJobID adds a job ID to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// GetJobID retrieves the job ID from the context.
func GetJobID(ctx context.Context) string {
	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		return jobID
	}
	return ""
}

// WithSubjectID adds a subject ID to the context.
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, SubjectIDKey, subjectID)
}

// GetSubjectID retrieves the subject ID from the context.
func GetSubjectID(ctx context.Context) string {
	if subjectID, ok := ctx.Value(SubjectIDKey).(string); ok {
		return subjectID
	}
	return ""
}

// WithRuleID adds a rule ID to the context.
func WithRuleID(ctx context.Context, ruleID string) context.Context {
	return context.WithValue(ctx, RuleIDKey, ruleID)
}

// GetRuleID retrieves the rule ID from the context.
func GetRuleID(ctx context.Context) string {
	if ruleID, ok := ctx.Value(RuleIDKey).(string); ok {
		return ruleID
	}
	return ""
}

// extractContextFields extracts the identifiers stored in ctx as attributes.
func extractContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var fields []slog.Attr
	if jobID := GetJobID(ctx); jobID != "" {
		fields = append(fields, slog.String(string(JobIDKey), jobID))
	}
	if subjectID := GetSubjectID(ctx); subjectID != "" {
		fields = append(fields, slog.String(string(SubjectIDKey), subjectID))
	}
	if ruleID := GetRuleID(ctx); ruleID != "" {
		fields = append(fields, slog.String(string(RuleIDKey), ruleID))
	}
	return fields
}
