package clinical

import (
	"context"
	"errors"
	"fmt"
)

// Source table names reported in missing data lists.
const (
	SourceSubjects         = "subjects"
	SourceDemographics     = "demographics"
	SourceVisits           = "visits"
	SourceLabs             = "laboratory_results"
	SourceECG              = "ecg_results"
	SourceAdverseEvents    = "adverse_events"
	SourceMedicalHistory   = "medical_history"
	SourceConMeds          = "concomitant_medications"
	SourceTumorAssessments = "tumor_assessments"
)

// Library is the read-only query interface over clinical source data.
// Record slices are ordered oldest first. An empty slice means no matching
// records; failures are reported as *DataUnavailableError.
type Library interface {
	Subject(ctx context.Context, subjectID string) (*Subject, error)
	SubjectIDs(ctx context.Context) ([]string, error)
	MedicalHistory(ctx context.Context, subjectID string, filter HistoryFilter) ([]MedicalCondition, error)
	ConMeds(ctx context.Context, subjectID string, filter ConMedFilter) ([]ConMed, error)
	Labs(ctx context.Context, subjectID string, filter LabFilter) ([]LabResult, error)
	ECGs(ctx context.Context, subjectID string) ([]ECGResult, error)
	TumorAssessments(ctx context.Context, subjectID string) ([]TumorAssessment, error)
	AdverseEvents(ctx context.Context, subjectID string, filter AEFilter) ([]AdverseEvent, error)
	Visits(ctx context.Context, subjectID string) ([]Visit, error)

	// Ping verifies the data store is reachable.
	Ping(ctx context.Context) error
}

// History status filters.
const (
	StatusOngoing  = "ongoing"
	StatusResolved = "resolved"
	StatusAny      = "any"
)

// HistoryFilter selects medical history entries. Terms match the condition
// name case-insensitively as substrings; an empty list matches everything.
type HistoryFilter struct {
	Terms  []string
	Status string
}

// ConMedFilter selects concomitant medications by name or class substring.
type ConMedFilter struct {
	Names       []string
	Classes     []string
	OngoingOnly bool
}

// LabFilter selects laboratory results. Since is an ISO date; results
// collected before it are excluded.
type LabFilter struct {
	TestNames []string
	Since     string
}

// AEFilter selects adverse events.
type AEFilter struct {
	Seriousness string
	Ongoing     *bool
	MinGrade    int
}

// DataUnavailableError reports that clinical data could not be retrieved.
// Source names the table that was queried.
type DataUnavailableError struct {
	SubjectID string
	Source    string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("%s unavailable for subject %s", e.Source, e.SubjectID)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DataUnavailableError) Unwrap() error {
	return e.Cause
}

// NewDataUnavailableError creates a DataUnavailableError.
func NewDataUnavailableError(subjectID, source, message string, cause error) *DataUnavailableError {
	return &DataUnavailableError{SubjectID: subjectID, Source: source, Message: message, Cause: cause}
}

// IsDataUnavailable reports whether err is a DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var target *DataUnavailableError
	return errors.As(err, &target)
}

// UnavailableSource returns the source table of a DataUnavailableError, or
// an empty string.
func UnavailableSource(err error) string {
	var target *DataUnavailableError
	if errors.As(err, &target) {
		return target.Source
	}
	return ""
}
