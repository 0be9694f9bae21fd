package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/virupakshb/TrialMonitor/pkg/clinical"
	"github.com/virupakshb/TrialMonitor/pkg/config"
	"github.com/virupakshb/TrialMonitor/pkg/jobs"
	"github.com/virupakshb/TrialMonitor/pkg/ledger"
	"github.com/virupakshb/TrialMonitor/pkg/ledger/export"
)

const clinicalFixture = `
INSERT INTO subjects (subject_id, site_id, screening_date, consent_date, study_status)
VALUES ('101-001', '101', '2024-01-02', '2024-01-02', 'Screening'),
       ('101-002', '101', '2024-02-01', '2024-02-01', 'Screening');

INSERT INTO visits (visit_id, subject_id, visit_number, visit_name, scheduled_date, actual_date, visit_status, visit_completed, missed_visit)
VALUES (1, '101-001', 1, 'Screening', '2024-01-02', '2024-01-02', 'Completed', 1, 0),
       (2, '101-002', 1, 'Screening', '2024-02-01', '2024-02-01', 'Completed', 1, 0);

INSERT INTO ecg_results (subject_id, visit_id, ecg_date, heart_rate, qtc_interval, qtcf_interval, interpretation, abnormal)
VALUES ('101-001', 1, '2024-01-03', 72, 470, 482, 'Prolonged QT', 1),
       ('101-002', 2, '2024-02-02', 68, 440, 445, 'Normal', 0);
`

// testConfig returns a configuration backed by a seeded SQLite clinical
// store, the shipped rules, and an in-memory ledger.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "clinical.db")
	store, err := clinical.OpenSQL(clinical.SQLConfig{Driver: "sqlite", DSN: dsn, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("OpenSQL() error = %v", err)
	}
	ctx := context.Background()
	if err := clinical.CreateSchema(ctx, store.DB()); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, clinicalFixture); err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	_ = store.Close()

	cfg := config.Default()
	cfg.Clinical.Driver = "sqlite"
	cfg.Clinical.DSN = dsn
	cfg.Clinical.MaxOpenConns = 1
	cfg.Rules.Path = "../../configs/rules"
	cfg.Rules.TemplatesPath = "../../configs/templates.yaml"
	cfg.Ledger.Backend = "memory"
	cfg.Reasoning.APIKey = ""
	return cfg
}

func TestNewApp_EvaluateRecordsRun(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, appOptions{metrics: true})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close(ctx)

	if a.provider != nil {
		t.Error("provider should be nil without an API key")
	}
	if a.collector == nil {
		t.Fatal("collector not created with metrics enabled")
	}

	snap, err := a.manager.Submit(ctx, jobs.Request{
		SubjectIDs: []string{"101-001", "101-002"},
		RuleIDs:    []string{"EXCL-008"},
		Trigger:    "cli",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	snap = followJob(waitCtx, a.manager, snap, nil)
	if snap.Status != jobs.StatusDone {
		t.Fatalf("job status = %s (%s), want done", snap.Status, snap.Error)
	}

	rec, err := a.ledger.Get(ctx, snap.JobID)
	if err != nil {
		t.Fatalf("ledger Get() error = %v", err)
	}
	if rec.Counts.Violations != 1 || rec.Counts.Passed != 1 {
		t.Errorf("counts = %+v, want 1 violation and 1 pass", rec.Counts)
	}

	var buf bytes.Buffer
	if err := writeOutput(&buf, "text", runReport{rec}); err != nil {
		t.Fatalf("writeOutput(text) error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"EXCL-008", "101-001", "violation", "SCREEN_FAILURE", "Violations: 1 (critical 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}

	report, err := queryViolations(a.ledger, ledger.Filter{}, 0)
	if err != nil {
		t.Fatalf("queryViolations() error = %v", err)
	}
	if len(report.Violations) != 1 || report.Violations[0].SubjectID != "101-001" {
		t.Errorf("violations = %+v", report.Violations)
	}
}

func TestNewApp_UnsupportedLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Backend = "postgres"

	if _, err := newApp(context.Background(), cfg, appOptions{}); err == nil {
		t.Fatal("newApp() should fail for an unsupported ledger backend")
	}
}

func TestNewLedgerApp_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.SQLite.Path = filepath.Join(t.TempDir(), "ledger.db")

	a, err := newLedgerApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newLedgerApp() error = %v", err)
	}
	defer a.close(context.Background())

	if a.manager != nil || a.store != nil {
		t.Error("ledger app should not open the evaluation stack")
	}
	runs, err := a.ledger.Runs(context.Background(), ledger.ListQuery{})
	if err != nil || len(runs) != 0 {
		t.Errorf("Runs() = %d, %v; want empty ledger", len(runs), err)
	}
}

func TestViolationReport_CSV(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close(ctx)

	snap, err := a.manager.Submit(ctx, jobs.Request{RuleIDs: []string{"EXCL-008"}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := a.manager.Wait(ctx, snap.JobID); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	report, err := queryViolations(a.ledger, ledger.Filter{Severity: "critical"}, 0)
	if err != nil {
		t.Fatalf("queryViolations() error = %v", err)
	}
	var buf bytes.Buffer
	if err := writeOutput(&buf, "csv", report); err != nil {
		t.Fatalf("writeOutput(csv) error = %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("CSV has %d records, want header + 1", len(records))
	}
	if len(records[0]) != len(export.Header()) || records[1][0] != "101-001" {
		t.Errorf("CSV = %v", records)
	}
}
