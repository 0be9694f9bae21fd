package ledger

import (
	"fmt"

	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

// MaxListLimit is the largest number of runs a single List call returns.
const MaxListLimit = 10000

// Validate checks a violation filter.
func (f Filter) Validate() error {
	if f.Severity != "" && !f.Severity.Valid() {
		return NewQueryError(f, fmt.Errorf("invalid severity: %s (must be %s, %s, %s, or %s)",
			f.Severity, rules.SeverityCritical, rules.SeverityMajor, rules.SeverityMinor, rules.SeverityInfo))
	}
	return nil
}

// Validate checks a run query.
func (q ListQuery) Validate() error {
	f := Filter{SubjectID: q.SubjectID, RuleID: q.RuleID}
	if q.Limit < 0 {
		return NewQueryError(f, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxListLimit {
		return NewQueryError(f, fmt.Errorf("limit must be <= %d, got %d", MaxListLimit, q.Limit))
	}
	return nil
}
