package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// MemoryStorage implements Storage in memory. Records are copied on the way
// in and out so callers can never modify stored runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*RunRecord
	byJob   map[string]int
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{byJob: make(map[string]int)}
}

// Append implements Storage.
func (s *MemoryStorage) Append(ctx context.Context, record *RunRecord) error {
	if err := validateRecord(record); err != nil {
		return NewStorageError("memory", "append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byJob[record.JobID]; ok {
		return ErrDuplicate
	}
	record.Seq = int64(len(s.records) + 1)
	stored, err := cloneRecord(record)
	if err != nil {
		return NewStorageError("memory", "append", err)
	}
	s.byJob[record.JobID] = len(s.records)
	s.records = append(s.records, stored)
	return nil
}

// Get implements Storage.
func (s *MemoryStorage) Get(ctx context.Context, jobID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byJob[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(s.records[i])
}

// List implements Storage.
func (s *MemoryStorage) List(ctx context.Context, query ListQuery) ([]*RunRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*RunRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.records[i]
		if !recordMatches(rec, query) {
			continue
		}
		c, err := cloneRecord(rec)
		if err != nil {
			return nil, NewStorageError("memory", "list", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Scan implements Storage.
func (s *MemoryStorage) Scan(ctx context.Context, fn func(*RunRecord) error) error {
	s.mu.RLock()
	records := slices.Clone(s.records)
	s.mu.RUnlock()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := cloneRecord(rec)
		if err != nil {
			return NewStorageError("memory", "scan", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Storage.
func (s *MemoryStorage) Close() error {
	return nil
}

func recordMatches(rec *RunRecord, q ListQuery) bool {
	if q.SubjectID != "" && !slices.Contains(rec.Scope, q.SubjectID) {
		return false
	}
	if q.RuleID != "" && !slices.Contains(rec.RuleIDs, q.RuleID) {
		return false
	}
	return true
}

// validateRecord enforces at most one result per (rule, subject) in a run.
func validateRecord(rec *RunRecord) error {
	if rec == nil || rec.JobID == "" {
		return fmt.Errorf("run record needs a job id")
	}
	seen := make(map[resultKey]bool, len(rec.Results))
	for _, r := range rec.Results {
		k := resultKey{ruleID: r.RuleID, subjectID: r.SubjectID}
		if seen[k] {
			return fmt.Errorf("job %s has more than one result for rule %s, subject %s", rec.JobID, r.RuleID, r.SubjectID)
		}
		seen[k] = true
	}
	return nil
}

// cloneRecord deep-copies a record through its JSON form, the same form the
// SQLite backend persists.
func cloneRecord(rec *RunRecord) (*RunRecord, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var out RunRecord
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
