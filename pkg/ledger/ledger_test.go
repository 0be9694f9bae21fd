package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/virupakshb/TrialMonitor/pkg/engine"
	"github.com/virupakshb/TrialMonitor/pkg/rules"
)

func ids(v []*engine.RuleResult) []string {
	out := []string{}
	for _, r := range v {
		out = append(out, r.SubjectID+"/"+r.RuleID)
	}
	return out
}

func TestIndex_LatestWins(t *testing.T) {
	first := record("job-1",
		result("EXCL-008", "S1", rules.SeverityCritical, ptr(true)),
		result("LAB-001", "S2", rules.SeverityMajor, ptr(true)),
	)
	first.Seq = 1
	second := record("job-2",
		result("EXCL-008", "S1", rules.SeverityCritical, ptr(false)),
		errored("LAB-001", "S2"),
	)
	second.Seq = 2

	// Order of application must not matter.
	for _, order := range [][]*RunRecord{{first, second}, {second, first}} {
		idx := BuildIndex(order)
		got := idx.Violations(Filter{})
		if len(got) != 1 || got[0].RuleID != "LAB-001" {
			t.Errorf("Violations() = %v, want only LAB-001 (error run must not clear it)", ids(got))
		}
		cur, ok := idx.Current("EXCL-008", "S1")
		if !ok || cur.IsViolation() {
			t.Errorf("Current(EXCL-008, S1) = %+v, want latest pass", cur)
		}
	}
}

func TestIndex_SkipsNotApplicable(t *testing.T) {
	first := record("job-1", result("INCL-001", "S1", rules.SeverityCritical, ptr(true)))
	first.Seq = 1
	second := record("job-2", notApplicable("INCL-001", "S1"))
	second.Seq = 2

	idx := BuildIndex([]*RunRecord{first, second})
	if got := idx.Violations(Filter{}); len(got) != 1 {
		t.Errorf("Violations() = %v, want the screening violation to stand", ids(got))
	}
}

func TestIndex_InconclusiveReplacesViolation(t *testing.T) {
	first := record("job-1", result("EXCL-008", "S1", rules.SeverityCritical, ptr(true)))
	first.Seq = 1
	second := record("job-2", result("EXCL-008", "S1", rules.SeverityCritical, nil))
	second.Seq = 2

	if got := BuildIndex([]*RunRecord{first, second}).Violations(Filter{}); len(got) != 0 {
		t.Errorf("Violations() = %v, want none", ids(got))
	}
}

func TestLedger_ViolationsSortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, NewMemoryStorage())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	rec := record("job-1",
		result("VISIT-001", "S2", rules.SeverityMinor, ptr(true)),
		result("LAB-001", "S2", rules.SeverityMajor, ptr(true)),
		result("EXCL-008", "S2", rules.SeverityCritical, ptr(true)),
		result("EXCL-008", "S1", rules.SeverityCritical, ptr(true)),
		result("AE-001", "S1", rules.SeverityInfo, ptr(true)),
		result("INCL-001", "S1", rules.SeverityCritical, ptr(false)),
	)
	if err := l.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"S1/EXCL-008", "S2/EXCL-008", "S2/LAB-001", "S2/VISIT-001", "S1/AE-001"}},
		{"subject", Filter{SubjectID: "S1"}, []string{"S1/EXCL-008", "S1/AE-001"}},
		{"rule", Filter{RuleID: "EXCL-008"}, []string{"S1/EXCL-008", "S2/EXCL-008"}},
		{"severity", Filter{Severity: rules.SeverityMajor}, []string{"S2/LAB-001"}},
		{"none", Filter{SubjectID: "S9"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, summary, err := l.Violations(tt.filter)
			if err != nil {
				t.Fatalf("Violations() error = %v", err)
			}
			if mustJSON(t, ids(got)) != mustJSON(t, tt.want) {
				t.Errorf("Violations() = %v, want %v", ids(got), tt.want)
			}
			if summary.TotalViolations != len(tt.want) {
				t.Errorf("summary total = %d, want %d", summary.TotalViolations, len(tt.want))
			}
		})
	}

	_, summary, _ := l.Violations(Filter{})
	if summary.BySeverity["critical"] != 2 || summary.BySeverity["info"] != 1 {
		t.Errorf("BySeverity = %v", summary.BySeverity)
	}
	if summary.UniqueSubjects != 2 || summary.UniqueRules != 4 {
		t.Errorf("unique subjects/rules = %d/%d, want 2/4", summary.UniqueSubjects, summary.UniqueRules)
	}

	if rec.Counts.Violations != 5 || rec.Counts.Critical != 2 || rec.Counts.Passed != 1 {
		t.Errorf("Counts = %+v", rec.Counts)
	}
}

func TestLedger_InvalidFilter(t *testing.T) {
	l, err := Open(context.Background(), NewMemoryStorage())
	if err != nil {
		t.Fatal(err)
	}
	var qe *QueryError
	if _, _, err := l.Violations(Filter{Severity: "urgent"}); !errors.As(err, &qe) {
		t.Errorf("Violations() error = %v, want QueryError", err)
	}
	if _, err := l.Runs(context.Background(), ListQuery{Limit: -1}); !errors.As(err, &qe) {
		t.Errorf("Runs() error = %v, want QueryError", err)
	}
}

func TestLedger_RebuildFromStorage(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l, err := Open(ctx, store)
			if err != nil {
				t.Fatal(err)
			}
			if err := l.Append(ctx, record("job-1", result("EXCL-008", "S1", rules.SeverityCritical, ptr(true)))); err != nil {
				t.Fatal(err)
			}
			if err := l.Append(ctx, record("job-2", result("EXCL-008", "S1", rules.SeverityCritical, ptr(false)))); err != nil {
				t.Fatal(err)
			}

			// A fresh ledger over the same storage derives the same index.
			reopened, err := Open(ctx, store)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			before, _, _ := l.Violations(Filter{})
			after, _, _ := reopened.Violations(Filter{})
			if len(before) != 0 || len(after) != 0 {
				t.Errorf("violations before/after rebuild = %v / %v, want none", ids(before), ids(after))
			}
			cur, ok := reopened.index.Current("EXCL-008", "S1")
			if !ok || cur.JobID != "job-2" {
				t.Errorf("rebuilt index entry = %+v, want job-2", cur)
			}
		})
	}
}

func TestLedger_RebuildDuringAppendsKeepsEveryRun(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, NewMemoryStorage())
	if err != nil {
		t.Fatal(err)
	}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			subject := fmt.Sprintf("S%03d", i)
			errs <- l.Append(ctx, record(fmt.Sprintf("job-%d", i), result("EXCL-008", subject, rules.SeverityCritical, ptr(true))))
		}()
		go func() {
			defer wg.Done()
			errs <- l.Rebuild(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	v, summary, err := l.Violations(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != n || summary.UniqueSubjects != n {
		t.Errorf("indexed violations = %d (subjects %d), want %d", len(v), summary.UniqueSubjects, n)
	}
}
