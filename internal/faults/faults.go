package faults

import (
	"errors"
	"fmt"
)

// Package faults defines the error taxonomy for driftwatch.
//
// The taxonomy mirrors how errors propagate through the service:
//
//   - ValidationError: bad or missing input. User-correctable, mapped to
//     4xx at the HTTP boundary.
//   - DataSourceError: the underlying tabular store failed a query. The
//     original driver error is preserved verbatim because it usually
//     signals infrastructure misconfiguration (missing table/column).
//   - AnalysisPathFailure: the LLM call failed or returned unparsable
//     output. Always contained internally by the rule-based fallback and
//     never surfaced to callers.
//   - PersistenceFailure: a durable write failed. Surfaced so the caller
//     or the surrounding infrastructure retries; silently dropping an
//     analysis defeats the reliability tracking the table exists for.

// ValidationError indicates user-correctable bad input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DataSourceError wraps a query failure from the tabular store. The wrapped
// error message is kept intact so operators see the store's own diagnostics.
type DataSourceError struct {
	Operation string
	Err       error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source error during %s: %v", e.Operation, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// NewDataSource wraps err as a DataSourceError for the named operation.
func NewDataSource(operation string, err error) *DataSourceError {
	return &DataSourceError{Operation: operation, Err: err}
}

// AnalysisPathFailure records why the AI analysis path could not produce a
// usable result. It is logged and swallowed by the fallback, never returned
// across the analyzer boundary.
type AnalysisPathFailure struct {
	Stage string // "completion", "parse", "timeout"
	Err   error
}

func (e *AnalysisPathFailure) Error() string {
	return fmt.Sprintf("analysis path failed at %s: %v", e.Stage, e.Err)
}

func (e *AnalysisPathFailure) Unwrap() error { return e.Err }

// NewAnalysisPath wraps err as an AnalysisPathFailure for the named stage.
func NewAnalysisPath(stage string, err error) *AnalysisPathFailure {
	return &AnalysisPathFailure{Stage: stage, Err: err}
}

// PersistenceFailure wraps a failed durable write.
type PersistenceFailure struct {
	Record string // e.g. "baseline", "analysis"
	Err    error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Record, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// NewPersistence wraps err as a PersistenceFailure for the named record kind.
func NewPersistence(record string, err error) *PersistenceFailure {
	return &PersistenceFailure{Record: record, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDataSource reports whether err is (or wraps) a DataSourceError.
func IsDataSource(err error) bool {
	var de *DataSourceError
	return errors.As(err, &de)
}

// IsPersistence reports whether err is (or wraps) a PersistenceFailure.
func IsPersistence(err error) bool {
	var pe *PersistenceFailure
	return errors.As(err, &pe)
}
