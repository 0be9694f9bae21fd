package ledger

import (
	"sync"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
)

// entry is the current result for a (rule, subject) pair together with the
// sequence number of the run that produced it.
type entry struct {
	seq    int64
	result *engine.RuleResult
}

// Index is the current violation view derived from the run log: for every
// (rule, subject) pair it keeps the result of the latest run that produced a
// verdict for it. Not-applicable and error results never replace an entry.
// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[resultKey]entry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[resultKey]entry)}
}

// BuildIndex derives an index from records. Records may be given in any
// order.
func BuildIndex(records []*RunRecord) *Index {
	idx := NewIndex()
	for _, rec := range records {
		idx.Apply(rec)
	}
	return idx
}

// Apply folds a run into the index. Results from a run older than the one
// already indexed for a pair are ignored.
func (x *Index) Apply(rec *RunRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, r := range rec.Results {
		switch r.EvaluationMethod {
		case engine.MethodNotApplicable, engine.MethodError:
			continue
		}
		k := resultKey{ruleID: r.RuleID, subjectID: r.SubjectID}
		if cur, ok := x.entries[k]; ok && cur.seq > rec.Seq {
			continue
		}
		x.entries[k] = entry{seq: rec.Seq, result: r}
	}
}

// Violations returns the current violations matching f, sorted by severity,
// subject, and rule.
func (x *Index) Violations(f Filter) []*engine.RuleResult {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]*engine.RuleResult, 0)
	for _, e := range x.entries {
		if e.result.IsViolation() && f.matches(e.result) {
			out = append(out, e.result)
		}
	}
	sortViolations(out)
	return out
}

// Current returns the indexed result for a pair, if any.
func (x *Index) Current(ruleID, subjectID string) (*engine.RuleResult, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.entries[resultKey{ruleID: ruleID, subjectID: subjectID}]
	return e.result, ok
}

// Len returns the number of indexed pairs.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
