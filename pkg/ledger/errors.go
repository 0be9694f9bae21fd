package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job has no stored run record.
	ErrNotFound = errors.New("run record not found")

	// ErrDuplicate is returned when a run record for the job already exists.
	ErrDuplicate = errors.New("run record already exists")
)

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("append", "get", "scan")
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError represents an invalid violation or run query.
type QueryError struct {
	Filter Filter
	Cause  error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("ledger query error [subject=%s, rule=%s, severity=%s]: %v",
		e.Filter.SubjectID, e.Filter.RuleID, e.Filter.Severity, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(f Filter, cause error) *QueryError {
	return &QueryError{Filter: f, Cause: cause}
}
