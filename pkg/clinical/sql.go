package clinical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLConfig contains connection settings for the SQL-backed library.
type SQLConfig struct {
	// Driver is the database/sql driver: "sqlite" (pure Go), "sqlite3"
	// (cgo), or "mysql".
	Driver string

	// DSN is the data source name. For SQLite drivers this is a file path.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int
}

// SQLStore implements Library over the clinical trial relational schema.
// It only issues SELECT statements.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// OpenSQL opens the clinical database described by cfg.
func OpenSQL(cfg SQLConfig) (*SQLStore, error) {
	switch cfg.Driver {
	case "sqlite", "sqlite3", "mysql":
	default:
		return nil, fmt.Errorf("unsupported clinical driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open clinical database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return NewSQLStore(db, cfg.Driver), nil
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		logger: slog.Default().With("component", "clinical.sql", "driver", driver),
	}
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clinical database unreachable: %w", err)
	}
	return nil
}

const subjectColumns = `subject_id, site_id, screening_number, randomization_number, initials,
	treatment_arm, treatment_arm_name, screening_date, consent_date, randomization_date, study_status`

// Subject returns the subject and their demographics.
func (s *SQLStore) Subject(ctx context.Context, subjectID string) (*Subject, error) {
	var (
		id                                            string
		site, scrNum, randNum, initials, arm, armName sql.NullString
		scrDate, consent, randDate, status            sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT "+subjectColumns+" FROM subjects WHERE subject_id = ?", subjectID,
	).Scan(&id, &site, &scrNum, &randNum, &initials, &arm, &armName, &scrDate, &consent, &randDate, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewDataUnavailableError(subjectID, SourceSubjects, "subject not found", nil)
	}
	if err != nil {
		return nil, NewDataUnavailableError(subjectID, SourceSubjects, "query failed", err)
	}

	subj := &Subject{
		ID:                  id,
		SiteID:              site.String,
		ScreeningNumber:     scrNum.String,
		RandomizationNumber: randNum.String,
		Initials:            initials.String,
		TreatmentArm:        arm.String,
		TreatmentArmName:    armName.String,
		ScreeningDate:       dateOnly(scrDate),
		ConsentDate:         dateOnly(consent),
		RandomizationDate:   dateOnly(randDate),
		StudyStatus:         status.String,
	}

	demo, err := s.row(ctx, "SELECT * FROM demographics WHERE subject_id = ?", subjectID)
	if err != nil {
		return nil, NewDataUnavailableError(subjectID, SourceDemographics, "query failed", err)
	}
	delete(demo, "subject_id")
	subj.Demographics = demo

	return subj, nil
}

// SubjectIDs returns every subject ID in ascending order.
func (s *SQLStore) SubjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT subject_id FROM subjects ORDER BY subject_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MedicalHistory returns matching medical history entries.
func (s *SQLStore) MedicalHistory(ctx context.Context, subjectID string, filter HistoryFilter) ([]MedicalCondition, error) {
	// condition is a reserved word in MySQL; backticks quote it in both dialects.
	q := "SELECT `condition`, diagnosis_date, ongoing, resolution_date, condition_category, condition_notes" +
		" FROM medical_history WHERE subject_id = ?"
	args := []any{subjectID}

	if clause, likeArgs := likeAny([]string{"`condition`"}, filter.Terms); clause != "" {
		q += " AND " + clause
		args = append(args, likeArgs...)
	}
	switch filter.Status {
	case StatusOngoing:
		q += " AND ongoing = 1"
	case StatusResolved:
		q += " AND ongoing = 0"
	}
	q += " ORDER BY diagnosis_date"

	var out []MedicalCondition
	err := s.query(ctx, subjectID, SourceMedicalHistory, q, args, func(rows *sql.Rows) error {
		var (
			cond                           string
			diag, resolved, category, note sql.NullString
			ongoing                        sql.NullBool
		)
		if err := rows.Scan(&cond, &diag, &ongoing, &resolved, &category, &note); err != nil {
			return err
		}
		out = append(out, MedicalCondition{
			Condition:      cond,
			DiagnosisDate:  dateOnly(diag),
			Ongoing:        ongoing.Bool,
			ResolutionDate: dateOnly(resolved),
			Category:       category.String,
			Notes:          note.String,
		})
		return nil
	})
	return out, err
}

// ConMeds returns matching concomitant medications.
func (s *SQLStore) ConMeds(ctx context.Context, subjectID string, filter ConMedFilter) ([]ConMed, error) {
	q := `SELECT medication_name, indication, dose, dose_unit, frequency, route, start_date, end_date, ongoing, medication_class
		FROM concomitant_medications WHERE subject_id = ?`
	args := []any{subjectID}

	var clauses []string
	if clause, likeArgs := likeAny([]string{"medication_name"}, filter.Names); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, likeArgs...)
	}
	if clause, likeArgs := likeAny([]string{"medication_class"}, filter.Classes); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, likeArgs...)
	}
	if len(clauses) > 0 {
		q += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	if filter.OngoingOnly {
		q += " AND ongoing = 1"
	}
	q += " ORDER BY start_date"

	var out []ConMed
	err := s.query(ctx, subjectID, SourceConMeds, q, args, func(rows *sql.Rows) error {
		var (
			name                                string
			indication, dose, unit, freq, route sql.NullString
			start, end, class                   sql.NullString
			ongoing                             sql.NullBool
		)
		if err := rows.Scan(&name, &indication, &dose, &unit, &freq, &route, &start, &end, &ongoing, &class); err != nil {
			return err
		}
		out = append(out, ConMed{
			Name:       name,
			Indication: indication.String,
			Dose:       dose.String,
			DoseUnit:   unit.String,
			Frequency:  freq.String,
			Route:      route.String,
			StartDate:  dateOnly(start),
			EndDate:    dateOnly(end),
			Ongoing:    ongoing.Bool,
			Class:      class.String,
		})
		return nil
	})
	return out, err
}

// Labs returns matching laboratory results.
func (s *SQLStore) Labs(ctx context.Context, subjectID string, filter LabFilter) ([]LabResult, error) {
	q := `SELECT visit_id, collection_date, lab_category, test_name, test_value, test_unit,
			normal_range_lower, normal_range_upper, abnormal_flag, clinically_significant
		FROM laboratory_results WHERE subject_id = ?`
	args := []any{subjectID}

	if len(filter.TestNames) > 0 {
		q += " AND LOWER(test_name) IN (" + placeholders(len(filter.TestNames)) + ")"
		for _, name := range filter.TestNames {
			args = append(args, strings.ToLower(name))
		}
	}
	if filter.Since != "" {
		q += " AND collection_date >= ?"
		args = append(args, filter.Since)
	}
	q += " ORDER BY collection_date"

	var out []LabResult
	err := s.query(ctx, subjectID, SourceLabs, q, args, func(rows *sql.Rows) error {
		var (
			visitID                    sql.NullInt64
			date, category, name, unit sql.NullString
			value, low, high           sql.NullFloat64
			flag                       sql.NullString
			significant                sql.NullBool
		)
		if err := rows.Scan(&visitID, &date, &category, &name, &value, &unit, &low, &high, &flag, &significant); err != nil {
			return err
		}
		out = append(out, LabResult{
			VisitID:               visitID.Int64,
			CollectionDate:        dateOnly(date),
			Category:              category.String,
			TestName:              name.String,
			Value:                 floatPtr(value),
			Unit:                  unit.String,
			NormalLow:             floatPtr(low),
			NormalHigh:            floatPtr(high),
			AbnormalFlag:          flag.String,
			ClinicallySignificant: significant.Bool,
		})
		return nil
	})
	return out, err
}

// ECGs returns all ECG results.
func (s *SQLStore) ECGs(ctx context.Context, subjectID string) ([]ECGResult, error) {
	q := `SELECT visit_id, ecg_date, heart_rate, pr_interval, qrs_duration, qt_interval, qtc_interval,
			qtcf_interval, interpretation, abnormal, clinically_significant
		FROM ecg_results WHERE subject_id = ? ORDER BY ecg_date`

	var out []ECGResult
	err := s.query(ctx, subjectID, SourceECG, q, []any{subjectID}, func(rows *sql.Rows) error {
		var (
			visitID                    sql.NullInt64
			date, interp               sql.NullString
			hr, pr, qrs, qt, qtc, qtcf sql.NullFloat64
			abnormal, significant      sql.NullBool
		)
		if err := rows.Scan(&visitID, &date, &hr, &pr, &qrs, &qt, &qtc, &qtcf, &interp, &abnormal, &significant); err != nil {
			return err
		}
		out = append(out, ECGResult{
			VisitID:               visitID.Int64,
			ECGDate:               dateOnly(date),
			HeartRate:             floatPtr(hr),
			PRInterval:            floatPtr(pr),
			QRSDuration:           floatPtr(qrs),
			QTInterval:            floatPtr(qt),
			QTcInterval:           floatPtr(qtc),
			QTcFInterval:          floatPtr(qtcf),
			Interpretation:        interp.String,
			Abnormal:              abnormal.Bool,
			ClinicallySignificant: significant.Bool,
		})
		return nil
	})
	return out, err
}

// TumorAssessments returns all tumor assessments.
func (s *SQLStore) TumorAssessments(ctx context.Context, subjectID string) ([]TumorAssessment, error) {
	q := `SELECT assessment_date, assessment_method, overall_response, target_lesion_sum, new_lesions, progression, assessment_notes
		FROM tumor_assessments WHERE subject_id = ? ORDER BY assessment_date`

	var out []TumorAssessment
	err := s.query(ctx, subjectID, SourceTumorAssessments, q, []any{subjectID}, func(rows *sql.Rows) error {
		var (
			date, method, response, notes sql.NullString
			lesionSum                     sql.NullFloat64
			newLesions, progression       sql.NullBool
		)
		if err := rows.Scan(&date, &method, &response, &lesionSum, &newLesions, &progression, &notes); err != nil {
			return err
		}
		out = append(out, TumorAssessment{
			AssessmentDate:  dateOnly(date),
			Method:          method.String,
			OverallResponse: response.String,
			TargetLesionSum: floatPtr(lesionSum),
			NewLesions:      newLesions.Bool,
			Progression:     progression.Bool,
			Notes:           notes.String,
		})
		return nil
	})
	return out, err
}

// AdverseEvents returns matching adverse events.
func (s *SQLStore) AdverseEvents(ctx context.Context, subjectID string, filter AEFilter) ([]AdverseEvent, error) {
	q := `SELECT ae_id, ae_term, meddra_preferred_term, onset_date, resolution_date, ongoing, severity, ctcae_grade,
			seriousness, serious_criteria, relationship_to_study_drug, action_taken, outcome
		FROM adverse_events WHERE subject_id = ?`
	args := []any{subjectID}

	if filter.Seriousness != "" {
		q += " AND LOWER(seriousness) = ?"
		args = append(args, strings.ToLower(filter.Seriousness))
	}
	if filter.Ongoing != nil {
		if *filter.Ongoing {
			q += " AND ongoing = 1"
		} else {
			q += " AND ongoing = 0"
		}
	}
	if filter.MinGrade > 0 {
		q += " AND ctcae_grade >= ?"
		args = append(args, filter.MinGrade)
	}
	q += " ORDER BY onset_date"

	var out []AdverseEvent
	err := s.query(ctx, subjectID, SourceAdverseEvents, q, args, func(rows *sql.Rows) error {
		var (
			id                                  sql.NullInt64
			term, pt, onset, resolved, severity sql.NullString
			serious, criteria, rel, action, oc  sql.NullString
			ongoing                             sql.NullBool
			grade                               sql.NullInt64
		)
		if err := rows.Scan(&id, &term, &pt, &onset, &resolved, &ongoing, &severity, &grade,
			&serious, &criteria, &rel, &action, &oc); err != nil {
			return err
		}
		out = append(out, AdverseEvent{
			ID:              id.Int64,
			Term:            term.String,
			PreferredTerm:   pt.String,
			OnsetDate:       dateOnly(onset),
			ResolutionDate:  dateOnly(resolved),
			Ongoing:         ongoing.Bool,
			Severity:        severity.String,
			Grade:           int(grade.Int64),
			Seriousness:     serious.String,
			SeriousCriteria: criteria.String,
			Relationship:    rel.String,
			ActionTaken:     action.String,
			Outcome:         oc.String,
		})
		return nil
	})
	return out, err
}

// Visits returns all visits ordered by visit number.
func (s *SQLStore) Visits(ctx context.Context, subjectID string) ([]Visit, error) {
	q := `SELECT visit_id, visit_number, visit_name, scheduled_date, actual_date, visit_status,
			days_from_randomization, visit_type, visit_completed, missed_visit, visit_notes
		FROM visits WHERE subject_id = ? ORDER BY visit_number`

	var out []Visit
	err := s.query(ctx, subjectID, SourceVisits, q, []any{subjectID}, func(rows *sql.Rows) error {
		var (
			id, number, days                sql.NullInt64
			name, scheduled, actual, status sql.NullString
			visitType, notes                sql.NullString
			completed, missed               sql.NullBool
		)
		if err := rows.Scan(&id, &number, &name, &scheduled, &actual, &status, &days, &visitType, &completed, &missed, &notes); err != nil {
			return err
		}
		v := Visit{
			VisitID:       id.Int64,
			VisitNumber:   int(number.Int64),
			VisitName:     name.String,
			ScheduledDate: dateOnly(scheduled),
			ActualDate:    dateOnly(actual),
			VisitStatus:   status.String,
			VisitType:     visitType.String,
			Completed:     completed.Bool,
			Missed:        missed.Bool,
			Notes:         notes.String,
		}
		if days.Valid {
			d := int(days.Int64)
			v.DaysFromRandomization = &d
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func (s *SQLStore) query(ctx context.Context, subjectID, source, q string, args []any, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return NewDataUnavailableError(subjectID, source, "query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return NewDataUnavailableError(subjectID, source, "scan failed", err)
		}
	}
	if err := rows.Err(); err != nil {
		return NewDataUnavailableError(subjectID, source, "query failed", err)
	}
	return nil
}

// row reads a single row into a column map. A missing row yields an empty
// map.
func (s *SQLStore) row(ctx context.Context, q string, args ...any) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)
	if !rows.Next() {
		return out, rows.Err()
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			out[col] = string(b)
			continue
		}
		out[col] = values[i]
	}
	return out, rows.Err()
}

func likeAny(columns, terms []string) (string, []any) {
	if len(terms) == 0 {
		return "", nil
	}
	var parts []string
	var args []any
	for _, col := range columns {
		for _, term := range terms {
			parts = append(parts, "LOWER("+col+") LIKE ?")
			args = append(args, "%"+strings.ToLower(term)+"%")
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// dateOnly trims timestamps returned by some drivers to the ISO date.
func dateOnly(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	if len(ns.String) > 10 && ns.String[4] == '-' && ns.String[7] == '-' {
		return ns.String[:10]
	}
	return ns.String
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
