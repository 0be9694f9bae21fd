package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrSubjectBusy is returned when a subject already has a job in flight.
	ErrSubjectBusy = errors.New("subject has a job in flight")

	// ErrShuttingDown is returned by Submit after Shutdown has started.
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// SubjectBusyError names the subject and the job that holds it.
type SubjectBusyError struct {
	SubjectID string
	JobID     string
}

// Error implements the error interface.
func (e *SubjectBusyError) Error() string {
	return fmt.Sprintf("subject %s is being evaluated by job %s", e.SubjectID, e.JobID)
}

// Is matches ErrSubjectBusy.
func (e *SubjectBusyError) Is(target error) bool {
	return target == ErrSubjectBusy
}

// RequestError reports an invalid job request.
type RequestError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid job request: %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid job request: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *RequestError) Unwrap() error {
	return e.Cause
}
