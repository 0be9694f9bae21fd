package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			inconclusive := result("EXCL-008", "101-002", rules.SeverityCritical, nil)
			inconclusive.MissingData = []string{"ecg_results"}
			inconclusive.ActualValue = nil
			inconclusive.Threshold = nil
			rec := record("job-rt",
				result("EXCL-008", "101-001", rules.SeverityCritical, ptr(true)),
				inconclusive,
				notApplicable("INCL-001", "101-001"),
			)

			if err := store.Append(ctx, rec); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if rec.Seq == 0 {
				t.Fatal("Append() did not assign Seq")
			}

			got, err := store.Get(ctx, "job-rt")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if want, have := mustJSON(t, rec), mustJSON(t, got); want != have {
				t.Errorf("round trip mismatch\nwant %s\n got %s", want, have)
			}
			if got.Results[1].Violated != nil {
				t.Error("inconclusive verdict did not survive storage")
			}
		})
	}
}

func TestStorage_Errors(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}

			if err := store.Append(ctx, record("job-dup", result("R1", "S1", rules.SeverityMinor, ptr(false)))); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if err := store.Append(ctx, record("job-dup")); !errors.Is(err, ErrDuplicate) {
				t.Errorf("second Append() error = %v, want ErrDuplicate", err)
			}

			twice := record("job-twice",
				result("R1", "S1", rules.SeverityMinor, ptr(false)),
				result("R1", "S1", rules.SeverityMinor, ptr(true)),
			)
			var se *StorageError
			if err := store.Append(ctx, twice); !errors.As(err, &se) {
				t.Errorf("Append(duplicate pair) error = %v, want StorageError", err)
			}
		})
	}
}

func TestStorage_ListAndScan(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, rec := range []*RunRecord{
				record("job-1", result("R1", "S1", rules.SeverityMajor, ptr(true))),
				record("job-2", result("R2", "S2", rules.SeverityMajor, ptr(false))),
				record("job-3", result("R1", "S2", rules.SeverityMajor, ptr(true))),
			} {
				if err := store.Append(ctx, rec); err != nil {
					t.Fatalf("Append(%s) error = %v", rec.JobID, err)
				}
			}

			tests := []struct {
				name  string
				query ListQuery
				want  []string
			}{
				{"all newest first", ListQuery{}, []string{"job-3", "job-2", "job-1"}},
				{"by subject", ListQuery{SubjectID: "S2"}, []string{"job-3", "job-2"}},
				{"by rule", ListQuery{RuleID: "R1"}, []string{"job-3", "job-1"}},
				{"limit", ListQuery{Limit: 1}, []string{"job-3"}},
				{"no match", ListQuery{SubjectID: "S9"}, nil},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					recs, err := store.List(ctx, tt.query)
					if err != nil {
						t.Fatalf("List() error = %v", err)
					}
					var ids []string
					for _, r := range recs {
						ids = append(ids, r.JobID)
					}
					if mustJSON(t, ids) != mustJSON(t, tt.want) {
						t.Errorf("List() = %v, want %v", ids, tt.want)
					}
				})
			}

			var order []string
			var seqs []int64
			err := store.Scan(ctx, func(r *RunRecord) error {
				order = append(order, r.JobID)
				seqs = append(seqs, r.Seq)
				return nil
			})
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if mustJSON(t, order) != `["job-1","job-2","job-3"]` {
				t.Errorf("Scan() order = %v", order)
			}
			if !(seqs[0] < seqs[1] && seqs[1] < seqs[2]) {
				t.Errorf("Seq not increasing: %v", seqs)
			}
		})
	}
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	rec := record("job-1", result("R1", "S1", rules.SeverityMajor, ptr(true)))
	if err := store.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Results[0].Reasoning = "changed after append"

	got, _ := store.Get(ctx, "job-1")
	got.Results[0].Evidence[0] = "changed after get"

	again, _ := store.Get(ctx, "job-1")
	if again.Results[0].Reasoning != "reasoning" || again.Results[0].Evidence[0] != "R1 evidence" {
		t.Errorf("stored record was modified: %+v", again.Results[0])
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/reopen.db"

	store, err := NewSQLiteStorage(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, record("job-1", result("R1", "S1", rules.SeverityMajor, ptr(true)))); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = NewSQLiteStorage(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()
	if _, err := store.Get(ctx, "job-1"); err != nil {
		t.Errorf("Get() after reopen error = %v", err)
	}
}
