package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
)

// Ledger is the append-only run log together with its derived current
// violation index.
type Ledger struct {
	store  Storage
	logger *slog.Logger

	mu    sync.RWMutex
	index *Index
}

// Open wraps store and builds the index from the records already in it.
func Open(ctx context.Context, store Storage) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		logger: slog.Default().With("component", "ledger"),
	}
	if err := l.Rebuild(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Append stores a finished run and folds it into the index. Appends run
// concurrently with each other but never overlap a Rebuild, so a rebuilt
// index cannot miss a stored run.
func (l *Ledger) Append(ctx context.Context, rec *RunRecord) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append run %s: %w", rec.JobID, err)
	}
	l.index.Apply(rec)

	l.logger.Info("run recorded",
		"job_id", rec.JobID,
		"seq", rec.Seq,
		"results", len(rec.Results),
		"violations", rec.Counts.Violations,
	)
	return nil
}

// Get returns the run record of a job.
func (l *Ledger) Get(ctx context.Context, jobID string) (*RunRecord, error) {
	return l.store.Get(ctx, jobID)
}

// Runs lists stored runs, newest first.
func (l *Ledger) Runs(ctx context.Context, q ListQuery) ([]*RunRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return l.store.List(ctx, q)
}

// Violations returns the current violations matching f and their summary.
func (l *Ledger) Violations(f Filter) ([]*engine.RuleResult, Summary, error) {
	if err := f.Validate(); err != nil {
		return nil, Summary{}, err
	}
	l.mu.RLock()
	v := l.index.Violations(f)
	l.mu.RUnlock()
	return v, Summarize(v), nil
}

// Rebuild recomputes the index from the full run log. Appends wait until
// it finishes.
func (l *Ledger) Rebuild(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := NewIndex()
	runs := 0
	err := l.store.Scan(ctx, func(rec *RunRecord) error {
		idx.Apply(rec)
		runs++
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild violation index: %w", err)
	}

	l.index = idx
	l.logger.Debug("violation index rebuilt", "runs", runs, "pairs", idx.Len())
	return nil
}

// Close closes the underlying storage.
func (l *Ledger) Close() error {
	return l.store.Close()
}
