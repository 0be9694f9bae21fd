package clinical

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

const fixtureSQL = `
INSERT INTO subjects (subject_id, site_id, treatment_arm, screening_date, consent_date, randomization_date, study_status)
VALUES ('101-001', '101', 'A', '2024-01-02', '2024-01-02', '2024-01-20', 'Active'),
       ('101-002', '101', NULL, '2024-02-01', '2024-02-01', NULL, 'Screening');

INSERT INTO demographics (subject_id, age, sex, ecog_performance_status, weight_kg, pregnancy_status)
VALUES ('101-001', 64, 'M', 1, 81.5, NULL);

INSERT INTO visits (visit_id, subject_id, visit_number, visit_name, scheduled_date, actual_date, visit_status, visit_completed, missed_visit)
VALUES (1, '101-001', 1, 'Screening', '2024-01-02', '2024-01-02', 'Completed', 1, 0),
       (3, '101-001', 3, 'Cycle 2 Day 1', '2024-02-10', '2024-02-16', 'Completed', 1, 0),
       (2, '101-001', 2, 'Baseline', '2024-01-20', '2024-01-20', 'Completed', 1, 0);

INSERT INTO laboratory_results (subject_id, visit_id, collection_date, lab_category, test_name, test_value, test_unit)
VALUES ('101-001', 1, '2024-01-03', 'Hematology', 'ANC', 1.2, '10^9/L'),
       ('101-001', 2, '2024-01-19', 'Hematology', 'ANC', 2.1, '10^9/L'),
       ('101-001', 2, '2024-01-19', 'Chemistry', 'ALT', 45, 'U/L');

INSERT INTO ecg_results (subject_id, visit_id, ecg_date, heart_rate, qtc_interval, qtcf_interval, interpretation, abnormal)
VALUES ('101-001', 1, '2024-01-03', 72, 470, 480, 'Prolonged QT', 1);

INSERT INTO adverse_events (ae_id, subject_id, ae_term, onset_date, ongoing, severity, ctcae_grade, seriousness)
VALUES (1, '101-001', 'Fatigue', '2024-02-01', 1, 'Mild', 1, 'No'),
       (2, '101-001', 'Pneumonitis', '2024-02-20', 1, 'Severe', 3, 'Yes');

INSERT INTO medical_history (subject_id, condition, diagnosis_date, ongoing, resolution_date)
VALUES ('101-001', 'Hypertension', '2015-06-01', 1, NULL),
       ('101-001', 'Brain metastases', '2023-09-01', 0, '2023-12-01');

INSERT INTO concomitant_medications (subject_id, medication_name, dose, dose_unit, frequency, start_date, end_date, ongoing, medication_class, indication)
VALUES ('101-001', 'Amlodipine', '5', 'mg', 'QD', '2015-06-01', NULL, 1, 'Calcium channel blocker', 'Hypertension'),
       ('101-001', 'Pembrolizumab', '200', 'mg', 'Q3W', '2023-01-01', '2023-06-01', 0, 'PD-1 inhibitor', 'NSCLC');
`

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	store, err := OpenSQL(SQLConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "clinical.db"),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("OpenSQL() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := CreateSchema(ctx, store.DB()); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, fixtureSQL); err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	return store
}

func TestOpenSQL_UnsupportedDriver(t *testing.T) {
	if _, err := OpenSQL(SQLConfig{Driver: "postgres", DSN: "x"}); err == nil {
		t.Fatal("OpenSQL() error = nil, want unsupported driver error")
	}
}

func TestSQLStore_Subject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	subj, err := store.Subject(ctx, "101-001")
	if err != nil {
		t.Fatalf("Subject() error = %v", err)
	}
	if subj.RandomizationDate != "2024-01-20" {
		t.Errorf("RandomizationDate = %q, want 2024-01-20", subj.RandomizationDate)
	}

	age, ok := subj.Field("age")
	if !ok {
		t.Fatal("Field(age) not found")
	}
	if f, err := ToFloat(age); err != nil || f != 64 {
		t.Errorf("age = %v, want 64", age)
	}
	if _, ok := subj.Field("pregnancy_status"); ok {
		t.Error("Field(pregnancy_status) ok = true for NULL column")
	}
	if _, ok := subj.Field("subject_id"); !ok {
		t.Error("Field(subject_id) not found")
	}

	screening, err := store.Subject(ctx, "101-002")
	if err != nil {
		t.Fatalf("Subject(101-002) error = %v", err)
	}
	if len(screening.Demographics) != 0 {
		t.Errorf("Demographics = %v, want empty for subject without a row", screening.Demographics)
	}
	if !screening.Screening() || screening.Randomized() {
		t.Error("subject 101-002 should be in screening and not randomized")
	}
}

func TestSQLStore_SubjectNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Subject(context.Background(), "999-999")
	if !IsDataUnavailable(err) {
		t.Fatalf("Subject() error = %v, want DataUnavailableError", err)
	}
	if got := UnavailableSource(err); got != SourceSubjects {
		t.Errorf("UnavailableSource() = %q, want %q", got, SourceSubjects)
	}
}

func TestSQLStore_SubjectIDs(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.SubjectIDs(context.Background())
	if err != nil {
		t.Fatalf("SubjectIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "101-001" || ids[1] != "101-002" {
		t.Errorf("SubjectIDs() = %v", ids)
	}
}

func TestSQLStore_Queries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("labs filtered by name, oldest first", func(t *testing.T) {
		labs, err := store.Labs(ctx, "101-001", LabFilter{TestNames: []string{"anc"}})
		if err != nil {
			t.Fatalf("Labs() error = %v", err)
		}
		if len(labs) != 2 {
			t.Fatalf("len(labs) = %d, want 2", len(labs))
		}
		if *labs[0].Value != 1.2 || *labs[1].Value != 2.1 {
			t.Errorf("lab order = %v, %v", *labs[0].Value, *labs[1].Value)
		}
	})

	t.Run("labs since date", func(t *testing.T) {
		labs, err := store.Labs(ctx, "101-001", LabFilter{Since: "2024-01-10"})
		if err != nil {
			t.Fatalf("Labs() error = %v", err)
		}
		if len(labs) != 2 {
			t.Errorf("len(labs) = %d, want 2", len(labs))
		}
	})

	t.Run("ecg", func(t *testing.T) {
		ecgs, err := store.ECGs(ctx, "101-001")
		if err != nil {
			t.Fatalf("ECGs() error = %v", err)
		}
		if len(ecgs) != 1 || ecgs[0].QTcFInterval == nil || *ecgs[0].QTcFInterval != 480 {
			t.Fatalf("ECGs() = %+v", ecgs)
		}
		if !ecgs[0].Abnormal {
			t.Error("Abnormal = false, want true")
		}
	})

	t.Run("adverse events by grade", func(t *testing.T) {
		aes, err := store.AdverseEvents(ctx, "101-001", AEFilter{MinGrade: 3})
		if err != nil {
			t.Fatalf("AdverseEvents() error = %v", err)
		}
		if len(aes) != 1 || aes[0].Term != "Pneumonitis" || !aes[0].Serious() {
			t.Errorf("AdverseEvents() = %+v", aes)
		}
	})

	t.Run("medical history term and status", func(t *testing.T) {
		mh, err := store.MedicalHistory(ctx, "101-001", HistoryFilter{Terms: []string{"BRAIN"}, Status: StatusResolved})
		if err != nil {
			t.Fatalf("MedicalHistory() error = %v", err)
		}
		if len(mh) != 1 || mh[0].ResolutionDate != "2023-12-01" {
			t.Errorf("MedicalHistory() = %+v", mh)
		}

		ongoing, err := store.MedicalHistory(ctx, "101-001", HistoryFilter{Terms: []string{"brain"}, Status: StatusOngoing})
		if err != nil {
			t.Fatalf("MedicalHistory() error = %v", err)
		}
		if len(ongoing) != 0 {
			t.Errorf("ongoing brain metastases = %d, want 0", len(ongoing))
		}
	})

	t.Run("conmeds by class", func(t *testing.T) {
		meds, err := store.ConMeds(ctx, "101-001", ConMedFilter{Classes: []string{"pd-1"}})
		if err != nil {
			t.Fatalf("ConMeds() error = %v", err)
		}
		if len(meds) != 1 || meds[0].Name != "Pembrolizumab" {
			t.Errorf("ConMeds() = %+v", meds)
		}

		ongoing, err := store.ConMeds(ctx, "101-001", ConMedFilter{Classes: []string{"pd-1"}, OngoingOnly: true})
		if err != nil {
			t.Fatalf("ConMeds() error = %v", err)
		}
		if len(ongoing) != 0 {
			t.Errorf("ongoing PD-1 meds = %d, want 0", len(ongoing))
		}
	})

	t.Run("visits by number", func(t *testing.T) {
		visits, err := store.Visits(ctx, "101-001")
		if err != nil {
			t.Fatalf("Visits() error = %v", err)
		}
		if len(visits) != 3 || visits[1].VisitNumber != 2 || !visits[2].Completed {
			t.Errorf("Visits() = %+v", visits)
		}
	})
}

func TestSQLStore_QueryFailureIsDataUnavailable(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	store := NewSQLStore(db, "sqlite")
	_, err = store.ECGs(context.Background(), "101-001")
	if !IsDataUnavailable(err) {
		t.Fatalf("ECGs() on missing table error = %v, want DataUnavailableError", err)
	}
	if got := UnavailableSource(err); got != SourceECG {
		t.Errorf("source = %q, want %q", got, SourceECG)
	}
}
