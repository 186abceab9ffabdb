package models

import (
	"errors"
	"fmt"
)

// ErrCode is the error taxonomy from spec.md §7.
type ErrCode string

const (
	ErrCodePlanningFailed    ErrCode = "planning_failed"
	ErrCodeGenerationFailed  ErrCode = "generation_failed"
	ErrCodeUnsafeCode        ErrCode = "unsafe_code"
	ErrCodeSQLError          ErrCode = "sql_error"
	ErrCodeSandboxFailed     ErrCode = "sandbox_failed"
	ErrCodeOutputUnparseable ErrCode = "output_unparseable"
	ErrCodeTransportError    ErrCode = "transport_error"
	ErrCodeRateLimitExhaust  ErrCode = "rate_limited_exhausted"
	ErrCodeSchemaViolation   ErrCode = "schema_violation"
	ErrCodeContentRefused    ErrCode = "content_refused"
	ErrCodeTimeout           ErrCode = "timeout"
	ErrCodeCancelled         ErrCode = "cancelled"
	ErrCodeCatalogMiss       ErrCode = "catalog_miss"
	ErrCodeFormatterFailed   ErrCode = "formatter_failed"
)

// PipelineError carries an ErrCode so the API layer and the executor's
// critical/non-critical failure handling can switch on error kind without
// string matching, mirroring the teacher's pkg/config/errors.go
// sentinel-plus-wrapper pattern.
type PipelineError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func newPipelineError(code ErrCode, format string, args ...any) *PipelineError {
	return &PipelineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError tags an underlying error with a pipeline ErrCode.
func WrapError(code ErrCode, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrCode from err, if it (or something it wraps) is a
// *PipelineError. Returns "" otherwise.
func CodeOf(err error) ErrCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Sentinel errors for common terminal conditions referenced directly by
// callers (errors.Is-friendly), matching the teacher's sentinel-error
// convention.
var (
	ErrPlanningFailed = &PipelineError{Code: ErrCodePlanningFailed, Message: "planner returned an empty or unparseable plan"}
	ErrCancelled      = &PipelineError{Code: ErrCodeCancelled, Message: "query was cancelled"}
)
