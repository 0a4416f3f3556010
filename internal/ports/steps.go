package ports

import (
	"context"
	"errors"
)

// ErrSecurityViolation marks a step failure caused by a policy breach
// (for example a webhook target outside the allowed hosts). Step executors
// wrap it; the supervisor records such failures as security.violation audit
// entries.
var ErrSecurityViolation = errors.New("security policy violation")

// StepRequest carries everything a step executor receives for one attempt.
// Config is the job's opaque payload; the orchestrator never interprets it.
type StepRequest struct {
	ExecutionID string
	JobID       string
	JobName     string
	Type        string
	Attempt     int
	Config      map[string]any
}

// StepExecutor runs the external workload behind one job type. The
// orchestrator treats it as opaque: a returned value is the job result, a
// returned error is a job failure. Implementations must honor ctx
// cancellation and deadlines.
type StepExecutor interface {
	Execute(ctx context.Context, req StepRequest) (any, error)
}

// StepExecutorFunc adapts a function to the StepExecutor interface.
type StepExecutorFunc func(ctx context.Context, req StepRequest) (any, error)

// Execute implements StepExecutor.
func (f StepExecutorFunc) Execute(ctx context.Context, req StepRequest) (any, error) {
	return f(ctx, req)
}

// StepResolver maps a job type to its executor. Resolution failures are
// surfaced to the caller of execute before any job starts.
type StepResolver interface {
	Resolve(jobType string) (StepExecutor, error)
}
