package clinical

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the SQLite layout of the clinical source tables read by
// SQLStore. It is used to provision empty databases for tests and demos;
// production data is loaded by the trial data pipeline.
const Schema = `
CREATE TABLE IF NOT EXISTS subjects (
	subject_id TEXT PRIMARY KEY,
	site_id TEXT,
	screening_number TEXT,
	randomization_number TEXT,
	initials TEXT,
	treatment_arm TEXT,
	treatment_arm_name TEXT,
	randomization_date TEXT,
	screening_date TEXT,
	consent_date TEXT,
	study_status TEXT,
	discontinuation_date TEXT,
	discontinuation_reason TEXT
);

CREATE TABLE IF NOT EXISTS demographics (
	subject_id TEXT PRIMARY KEY REFERENCES subjects(subject_id),
	date_of_birth TEXT,
	age INTEGER,
	sex TEXT,
	race TEXT,
	ethnicity TEXT,
	weight_kg REAL,
	height_cm REAL,
	bmi REAL,
	ecog_performance_status INTEGER,
	smoking_status TEXT,
	smoking_pack_years REAL,
	pregnancy_status TEXT
);

CREATE TABLE IF NOT EXISTS visits (
	visit_id INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
	visit_number INTEGER,
	visit_name TEXT,
	scheduled_date TEXT,
	actual_date TEXT,
	visit_status TEXT,
	window_lower_days INTEGER,
	window_upper_days INTEGER,
	days_from_randomization INTEGER,
	visit_type TEXT,
	visit_completed INTEGER DEFAULT 0,
	missed_visit INTEGER DEFAULT 0,
	visit_notes TEXT
);

CREATE TABLE IF NOT EXISTS laboratory_results (
	lab_id INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
	visit_id INTEGER,
	collection_date TEXT,
	lab_category TEXT,
	test_name TEXT,
	test_value REAL,
	test_unit TEXT,
	normal_range_lower REAL,
	normal_range_upper REAL,
	abnormal_flag TEXT,
	clinically_significant INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS adverse_events (
	ae_id INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
	ae_term TEXT,
	meddra_preferred_term TEXT,
	onset_date TEXT,
	resolution_date TEXT,
	ongoing INTEGER DEFAULT 0,
	severity TEXT,
	ctcae_grade INTEGER,
	seriousness TEXT,
	serious_criteria TEXT,
	relationship_to_study_drug TEXT,
	action_taken TEXT,
	outcome TEXT
);

CREATE TABLE IF NOT EXISTS medical_history (
	history_id INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
	condition TEXT,
	diagnosis_date TEXT,
	ongoing INTEGER DEFAULT 0,
	resolution_date TEXT,
	condition_category TEXT,
	condition_notes TEXT
);

CREATE TABLE IF NOT EXISTS concomitant_medications (
	medication_id INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
	medication_name TEXT,
	indication TEXT,
	dose TEXT,
	dose_unit TEXT,
	frequency TEXT,
	route TEXT,
	start_date TEXT,
	end_date TEXT,
	ongoing INTEGER DEFAULT 0,
	medication_class TEXT
);

CREATE TABLE IF NOT EXISTS tumor_assessments (
	assessment_id INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
	assessment_date TEXT,
	assessment_method TEXT,
	overall_response TEXT,
	target_lesion_sum REAL,
	new_lesions INTEGER DEFAULT 0,
	progression INTEGER DEFAULT 0,
	assessment_notes TEXT
);

CREATE TABLE IF NOT EXISTS ecg_results (
	ecg_id INTEGER PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(subject_id),
	visit_id INTEGER,
	ecg_date TEXT,
	heart_rate REAL,
	pr_interval REAL,
	qrs_duration REAL,
	qt_interval REAL,
	qtc_interval REAL,
	qtcf_interval REAL,
	interpretation TEXT,
	abnormal INTEGER DEFAULT 0,
	clinically_significant INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_visits_subject ON visits(subject_id);
CREATE INDEX IF NOT EXISTS idx_labs_subject ON laboratory_results(subject_id, test_name);
CREATE INDEX IF NOT EXISTS idx_ae_subject ON adverse_events(subject_id);
CREATE INDEX IF NOT EXISTS idx_mh_subject ON medical_history(subject_id);
CREATE INDEX IF NOT EXISTS idx_cm_subject ON concomitant_medications(subject_id);
CREATE INDEX IF NOT EXISTS idx_ecg_subject ON ecg_results(subject_id);
`

// CreateSchema creates the clinical tables on a SQLite database.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create clinical schema: %w", err)
	}
	return nil
}
