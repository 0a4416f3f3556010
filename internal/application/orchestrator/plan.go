package orchestrator

import (
	"time"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
)

// Defaults carries the orchestrator-wide scheduling policy applied when a
// pipeline does not override it.
type Defaults struct {
	// Parallelism caps concurrently running jobs per execution. Zero means
	// no cap beyond the width of the current level.
	Parallelism int
	// JobTimeout bounds a single step attempt. Zero disables the bound.
	JobTimeout time.Duration
	// ExecutionTimeout bounds a whole execution. Zero disables the bound.
	ExecutionTimeout time.Duration
	// MaxRetries caps how many times a failed job may be re-attempted,
	// whatever the job asks for.
	MaxRetries int
}

// Plan is an immutable execution plan: the validated levels of a pipeline
// plus the effective scheduling policy for running them.
type Plan struct {
	Spec   *domain.PipelineSpec
	Levels [][]string

	jobs     map[string]domain.Job
	defaults Defaults
}

// BuildPlan binds a validated pipeline and its execution levels to the
// orchestrator defaults. The spec must already have passed validation.
func BuildPlan(spec *domain.PipelineSpec, levels [][]string, defaults Defaults) *Plan {
	jobs := make(map[string]domain.Job, len(spec.Jobs))
	for _, job := range spec.Jobs {
		jobs[job.ID] = job
	}
	return &Plan{
		Spec:     spec,
		Levels:   levels,
		jobs:     jobs,
		defaults: defaults,
	}
}

// Job returns the declaration of the given job id.
func (p *Plan) Job(id string) domain.Job {
	return p.jobs[id]
}

// Parallelism returns the effective cap on concurrently running jobs.
// The pipeline option wins over the orchestrator default; zero means
// unbounded.
func (p *Plan) Parallelism() int {
	if p.Spec.Options.Parallelism > 0 {
		return p.Spec.Options.Parallelism
	}
	return p.defaults.Parallelism
}

// JobTimeout returns the attempt timeout for the given job: the job's own
// setting first, then the pipeline option, then the orchestrator default.
// Zero disables the timeout.
func (p *Plan) JobTimeout(job domain.Job) time.Duration {
	if job.TimeoutSeconds > 0 {
		return time.Duration(job.TimeoutSeconds) * time.Second
	}
	if p.Spec.Options.JobTimeoutSeconds > 0 {
		return time.Duration(p.Spec.Options.JobTimeoutSeconds) * time.Second
	}
	return p.defaults.JobTimeout
}

// ExecutionTimeout returns the deadline for the whole execution. A negative
// pipeline option disables the deadline even when the orchestrator default
// sets one; zero falls back to that default.
func (p *Plan) ExecutionTimeout() time.Duration {
	switch {
	case p.Spec.Options.ExecutionTimeoutSeconds > 0:
		return time.Duration(p.Spec.Options.ExecutionTimeoutSeconds) * time.Second
	case p.Spec.Options.ExecutionTimeoutSeconds < 0:
		return 0
	default:
		return p.defaults.ExecutionTimeout
	}
}

// Retries returns how many re-attempts the given job is allowed after its
// first failure, bounded by the orchestrator-wide cap.
func (p *Plan) Retries(job domain.Job) int {
	retries := job.Retries
	if retries < 0 {
		retries = 0
	}
	if p.defaults.MaxRetries >= 0 && retries > p.defaults.MaxRetries {
		retries = p.defaults.MaxRetries
	}
	return retries
}
