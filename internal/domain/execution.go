package domain

import (
	"time"
)

// ExecutionStatus is the aggregate lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal executions are
// never mutated again.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle state of a single job run.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// Terminal reports whether the job status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusSkipped:
		return true
	default:
		return false
	}
}

// JobErrorCode classifies why a job run did not complete, so callers can
// tell "the step ran and failed" apart from "the step never returned".
type JobErrorCode string

const (
	JobErrorStep     JobErrorCode = "step_error"
	JobErrorTimeout  JobErrorCode = "timeout"
	JobErrorSecurity JobErrorCode = "security_violation"
	JobErrorSkipped  JobErrorCode = "skipped"
)

// JobError is the terminal error recorded on a failed or skipped job run.
type JobError struct {
	Code    JobErrorCode `json:"code"`
	Message string       `json:"message"`
}

// Error implements the error interface.
func (e *JobError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// JobRun is the per-execution record of one job's attempted invocation.
type JobRun struct {
	JobID     string     `json:"jobId"`
	Status    JobStatus  `json:"status"`
	Attempts  int        `json:"attempts"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     *JobError  `json:"error,omitempty"`
}

// Clone returns a deep copy of the job run. Result is treated as an opaque
// immutable value and shared.
func (r *JobRun) Clone() *JobRun {
	if r == nil {
		return nil
	}
	out := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return &out
}

// Execution is one running or finished instantiation of a PipelineSpec.
// It is mutated only by the supervisor's single writer loop and becomes
// immutable once Status is terminal.
type Execution struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status ExecutionStatus `json:"status"`

	// Spec is the definition copied at creation time.
	Spec PipelineSpec `json:"spec"`

	// Levels is the validated execution plan: ordered batches of job ids
	// safe to run concurrently.
	Levels [][]string `json:"levels"`

	TotalJobs     int `json:"totalJobs"`
	CompletedJobs int `json:"completedJobs"`
	// FailedJobs counts failed and skipped runs, so Progress reaches 100
	// even when part of the graph never ran.
	FailedJobs int `json:"failedJobs"`
	// Progress is the share of terminal job runs, 0-100.
	Progress int `json:"progress"`

	Jobs map[string]*JobRun `json:"jobs"`

	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewExecution builds a pending execution for the given spec and plan
// levels. The spec is deep-copied; all job runs start pending.
func NewExecution(id string, spec *PipelineSpec, levels [][]string) *Execution {
	e := &Execution{
		ID:        id,
		Name:      spec.Name,
		Status:    ExecutionStatusPending,
		Spec:      *spec.Clone(),
		Levels:    cloneLevels(levels),
		TotalJobs: len(spec.Jobs),
		Jobs:      make(map[string]*JobRun, len(spec.Jobs)),
		CreatedAt: time.Now().UTC(),
	}
	for _, j := range spec.Jobs {
		e.Jobs[j.ID] = &JobRun{JobID: j.ID, Status: JobStatusPending}
	}
	return e
}

// Recount refreshes CompletedJobs, FailedJobs and Progress from the job
// run map. Called by the supervisor after every job transition so status
// polls observe live, monotonic progress.
func (e *Execution) Recount() {
	completed, failed := 0, 0
	for _, r := range e.Jobs {
		switch r.Status {
		case JobStatusCompleted:
			completed++
		case JobStatusFailed, JobStatusSkipped:
			failed++
		}
	}
	e.CompletedJobs = completed
	e.FailedJobs = failed
	if e.TotalJobs > 0 {
		e.Progress = (completed + failed) * 100 / e.TotalJobs
	}
}

// Duration is the elapsed wall time: now-startedAt while running,
// completedAt-startedAt once finished, zero before the first job starts.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil {
		return 0
	}
	if e.CompletedAt != nil {
		return e.CompletedAt.Sub(*e.StartedAt)
	}
	return time.Since(*e.StartedAt)
}

// Clone returns a deep copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	out := *e
	out.Spec = *e.Spec.Clone()
	out.Levels = cloneLevels(e.Levels)
	out.Jobs = make(map[string]*JobRun, len(e.Jobs))
	for id, r := range e.Jobs {
		out.Jobs[id] = r.Clone()
	}
	if e.StartedAt != nil {
		t := *e.StartedAt
		out.StartedAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneLevels(levels [][]string) [][]string {
	if levels == nil {
		return nil
	}
	out := make([][]string, len(levels))
	for i, level := range levels {
		out[i] = make([]string, len(level))
		copy(out[i], level)
	}
	return out
}
