package logging

import (
	"log/slog"
	"regexp"
)

// Common redaction pattern names.
const (
	PatternSubjectID = "subject_id"
	PatternAPIKey    = "api_key"
)

// Redactor masks subject identifiers and API keys in log attribute values.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*redactPattern{
			{
				name:        PatternAPIKey,
				regex:       regexp.MustCompile(`sk-[a-zA-Z0-9_-]+`),
				replacement: "sk-***",
			},
			{
				// Site-subject identifiers such as 101-001.
				name:        PatternSubjectID,
				regex:       regexp.MustCompile(`\b(\d{3})-\d{3}\b`),
				replacement: "$1-***",
			},
		},
	}
}

// RedactString redacts all known patterns from value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr redacts string attribute values, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		attrs := make([]any, len(group))
		for i, ga := range group {
			attrs[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, attrs...)
	default:
		return a
	}
}
