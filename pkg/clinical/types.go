package clinical

import (
	"fmt"
	"strings"
)

// Subject is a trial participant and the demographics recorded for them.
// Demographics are kept as a column map so that rules can reference any
// recorded field by name.
type Subject struct {
	ID                  string         `json:"subject_id"`
	SiteID              string         `json:"site_id,omitempty"`
	ScreeningNumber     string         `json:"screening_number,omitempty"`
	RandomizationNumber string         `json:"randomization_number,omitempty"`
	Initials            string         `json:"initials,omitempty"`
	TreatmentArm        string         `json:"treatment_arm,omitempty"`
	TreatmentArmName    string         `json:"treatment_arm_name,omitempty"`
	ScreeningDate       string         `json:"screening_date,omitempty"`
	ConsentDate         string         `json:"consent_date,omitempty"`
	RandomizationDate   string         `json:"randomization_date,omitempty"`
	StudyStatus         string         `json:"study_status,omitempty"`
	Demographics        map[string]any `json:"demographics,omitempty"`
}

// Field returns a subject or demographics value by column name. The second
// result is false when the field is unknown or has no recorded value.
func (s *Subject) Field(name string) (any, bool) {
	if v, ok := s.Demographics[name]; ok {
		return v, v != nil && v != ""
	}

	var v string
	switch name {
	case "subject_id":
		v = s.ID
	case "site_id":
		v = s.SiteID
	case "screening_number":
		v = s.ScreeningNumber
	case "randomization_number":
		v = s.RandomizationNumber
	case "treatment_arm":
		v = s.TreatmentArm
	case "treatment_arm_name":
		v = s.TreatmentArmName
	case "screening_date":
		v = s.ScreeningDate
	case "consent_date":
		v = s.ConsentDate
	case "randomization_date":
		v = s.RandomizationDate
	case "study_status":
		v = s.StudyStatus
	default:
		return nil, false
	}
	return v, v != ""
}

// Screening reports whether the subject is still in screening.
func (s *Subject) Screening() bool {
	return strings.EqualFold(s.StudyStatus, "screening")
}

// Randomized reports whether the subject has a randomization date.
func (s *Subject) Randomized() bool {
	return s.RandomizationDate != ""
}

// Visit is one scheduled or completed study visit.
type Visit struct {
	VisitID               int64  `json:"visit_id"`
	VisitNumber           int    `json:"visit_number"`
	VisitName             string `json:"visit_name"`
	ScheduledDate         string `json:"scheduled_date,omitempty"`
	ActualDate            string `json:"actual_date,omitempty"`
	VisitStatus           string `json:"visit_status,omitempty"`
	DaysFromRandomization *int   `json:"days_from_randomization,omitempty"`
	VisitType             string `json:"visit_type,omitempty"`
	Completed             bool   `json:"visit_completed"`
	Missed                bool   `json:"missed_visit"`
	Notes                 string `json:"visit_notes,omitempty"`
}

// Evidence renders the visit as citable text.
func (v Visit) Evidence() string {
	actual := v.ActualDate
	if actual == "" {
		actual = "not done"
	}
	return fmt.Sprintf("%s (#%d): scheduled %s, actual %s, status %s",
		v.VisitName, v.VisitNumber, v.ScheduledDate, actual, orDash(v.VisitStatus))
}

// LabResult is one laboratory measurement.
type LabResult struct {
	VisitID               int64    `json:"visit_id,omitempty"`
	CollectionDate        string   `json:"collection_date"`
	Category              string   `json:"lab_category,omitempty"`
	TestName              string   `json:"test_name"`
	Value                 *float64 `json:"test_value"`
	Unit                  string   `json:"test_unit,omitempty"`
	NormalLow             *float64 `json:"normal_range_lower,omitempty"`
	NormalHigh            *float64 `json:"normal_range_upper,omitempty"`
	AbnormalFlag          string   `json:"abnormal_flag,omitempty"`
	ClinicallySignificant bool     `json:"clinically_significant"`
}

// Evidence renders the lab result as citable text.
func (l LabResult) Evidence() string {
	s := fmt.Sprintf("%s: %s %s (collected %s", l.TestName, formatFloat(l.Value), l.Unit, l.CollectionDate)
	if l.VisitID != 0 {
		s += fmt.Sprintf(", visit %d", l.VisitID)
	}
	if l.AbnormalFlag != "" {
		s += ", flag " + l.AbnormalFlag
	}
	return s + ")"
}

// ECGResult is one electrocardiogram reading.
type ECGResult struct {
	VisitID               int64    `json:"visit_id,omitempty"`
	ECGDate               string   `json:"ecg_date"`
	HeartRate             *float64 `json:"heart_rate,omitempty"`
	PRInterval            *float64 `json:"pr_interval,omitempty"`
	QRSDuration           *float64 `json:"qrs_duration,omitempty"`
	QTInterval            *float64 `json:"qt_interval,omitempty"`
	QTcInterval           *float64 `json:"qtc_interval,omitempty"`
	QTcFInterval          *float64 `json:"qtcf_interval,omitempty"`
	Interpretation        string   `json:"interpretation,omitempty"`
	Abnormal              bool     `json:"abnormal"`
	ClinicallySignificant bool     `json:"clinically_significant"`
}

// Measurement returns the ECG parameter matching a test name. QTcF maps to
// the Fridericia-corrected interval; QTc and QT map to the corrected
// interval. ok is false when the name is not an ECG parameter.
func (e ECGResult) Measurement(testName string) (value *float64, ok bool) {
	switch strings.ToUpper(testName) {
	case "QTCF":
		return e.QTcFInterval, true
	case "QTC", "QT":
		return e.QTcInterval, true
	case "HR", "HEART_RATE":
		return e.HeartRate, true
	case "PR", "PR_INTERVAL":
		return e.PRInterval, true
	case "QRS", "QRS_DURATION":
		return e.QRSDuration, true
	}
	return nil, false
}

// Evidence renders the ECG as citable text.
func (e ECGResult) Evidence() string {
	return fmt.Sprintf("ECG %s: QTcF %s msec, QTc %s msec, HR %s bpm (%s)",
		e.ECGDate, formatFloat(e.QTcFInterval), formatFloat(e.QTcInterval), formatFloat(e.HeartRate), orDash(e.Interpretation))
}

// IsECGParameter reports whether a test name is read from ECG results
// rather than laboratory results.
func IsECGParameter(testName string) bool {
	_, ok := ECGResult{}.Measurement(testName)
	return ok
}

// AdverseEvent is one reported adverse event.
type AdverseEvent struct {
	ID              int64  `json:"ae_id"`
	Term            string `json:"ae_term"`
	PreferredTerm   string `json:"meddra_preferred_term,omitempty"`
	OnsetDate       string `json:"onset_date"`
	ResolutionDate  string `json:"resolution_date,omitempty"`
	Ongoing         bool   `json:"ongoing"`
	Severity        string `json:"severity,omitempty"`
	Grade           int    `json:"ctcae_grade"`
	Seriousness     string `json:"seriousness,omitempty"`
	SeriousCriteria string `json:"serious_criteria,omitempty"`
	Relationship    string `json:"relationship_to_study_drug,omitempty"`
	ActionTaken     string `json:"action_taken,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
}

// Serious reports whether the event is flagged as serious.
func (a AdverseEvent) Serious() bool {
	return strings.EqualFold(a.Seriousness, "yes")
}

// Evidence renders the adverse event as citable text.
func (a AdverseEvent) Evidence() string {
	sae := "No"
	if a.Serious() {
		sae = "Yes"
	}
	return fmt.Sprintf("%s - Grade %d (%s, SAE=%s, onset=%s)", a.Term, a.Grade, orDash(a.Severity), sae, a.OnsetDate)
}

// MedicalCondition is one medical history entry.
type MedicalCondition struct {
	Condition      string `json:"condition"`
	DiagnosisDate  string `json:"diagnosis_date,omitempty"`
	Ongoing        bool   `json:"ongoing"`
	ResolutionDate string `json:"resolution_date,omitempty"`
	Category       string `json:"condition_category,omitempty"`
	Notes          string `json:"condition_notes,omitempty"`
}

// Evidence renders the condition as citable text.
func (m MedicalCondition) Evidence() string {
	status := "ongoing"
	if !m.Ongoing {
		status = "resolved " + m.ResolutionDate
		status = strings.TrimSpace(status)
	}
	return fmt.Sprintf("%s (diagnosed %s, %s)", m.Condition, orDash(m.DiagnosisDate), status)
}

// ConMed is one concomitant medication.
type ConMed struct {
	Name       string `json:"medication_name"`
	Indication string `json:"indication,omitempty"`
	Dose       string `json:"dose,omitempty"`
	DoseUnit   string `json:"dose_unit,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
	Route      string `json:"route,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	Ongoing    bool   `json:"ongoing"`
	Class      string `json:"medication_class,omitempty"`
}

// Evidence renders the medication as citable text.
func (c ConMed) Evidence() string {
	period := "ONGOING (no end date)"
	if c.EndDate != "" {
		period = "ended " + c.EndDate
	}
	return fmt.Sprintf("%s %s %s %s (started %s, %s, indication: %s)",
		c.Name, c.Dose, c.DoseUnit, c.Frequency, orDash(c.StartDate), period, orDash(c.Indication))
}

// TumorAssessment is one tumor response assessment.
type TumorAssessment struct {
	AssessmentDate  string   `json:"assessment_date"`
	Method          string   `json:"assessment_method,omitempty"`
	OverallResponse string   `json:"overall_response,omitempty"`
	TargetLesionSum *float64 `json:"target_lesion_sum,omitempty"`
	NewLesions      bool     `json:"new_lesions"`
	Progression     bool     `json:"progression"`
	Notes           string   `json:"assessment_notes,omitempty"`
}

// Evidence renders the assessment as citable text.
func (t TumorAssessment) Evidence() string {
	return fmt.Sprintf("%s %s: %s (target lesion sum %s mm, new lesions=%t)",
		t.AssessmentDate, orDash(t.Method), orDash(t.OverallResponse), formatFloat(t.TargetLesionSum), t.NewLesions)
}

func formatFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return FormatNumber(*v)
}

// FormatNumber renders a number without a trailing ".0" for whole values.
func FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
