package domain

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ValidationCode identifies one class of graph validation failure.
type ValidationCode string

const (
	ValidationEmptyPipeline     ValidationCode = "empty_pipeline"
	ValidationMissingID         ValidationCode = "missing_id"
	ValidationDuplicateJob      ValidationCode = "duplicate_job"
	ValidationSelfDependency    ValidationCode = "self_dependency"
	ValidationMissingDependency ValidationCode = "missing_dependency"
	ValidationCycleDetected     ValidationCode = "cycle_detected"
	ValidationUnknownJobType    ValidationCode = "unknown_job_type"
)

// ValidationError describes one problem found in a pipeline definition.
type ValidationError struct {
	Code    ValidationCode `json:"code"`
	JobID   string         `json:"jobId,omitempty"`
	Message string         `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s: job %q: %s", e.Code, e.JobID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationResult is the outcome of validating a PipelineSpec. When Valid
// is false no execution levels are emitted, not even partial ones.
type ValidationResult struct {
	Valid           bool              `json:"valid"`
	ExecutionLevels [][]string        `json:"executionLevels,omitempty"`
	TotalJobs       int               `json:"totalJobs"`
	MaxParallelJobs int               `json:"maxParallelJobs"`
	Errors          []ValidationError `json:"errors,omitempty"`
}

// Err joins all validation errors into a single error, or nil when valid.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	var merr *multierror.Error
	for _, e := range r.Errors {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}

// HasCode reports whether any error carries the given code.
func (r *ValidationResult) HasCode(code ValidationCode) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}
