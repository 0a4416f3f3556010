package domain

// Job is a single unit of work inside a pipeline DAG. Its Type selects the
// step executor; Config is an opaque payload handed to that executor.
type Job struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Type      string         `json:"type"`
	DependsOn []string       `json:"dependsOn,omitempty"`
	Config    map[string]any `json:"config,omitempty"`

	// Retries is the number of supervisor-level re-attempts after a failed
	// attempt before the run is terminal. Zero means a single attempt.
	Retries int `json:"retries,omitempty"`

	// TimeoutSeconds overrides the configured per-job timeout. Zero means
	// inherit from Options or the service default.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	out := j
	if j.DependsOn != nil {
		out.DependsOn = make([]string, len(j.DependsOn))
		copy(out.DependsOn, j.DependsOn)
	}
	if j.Config != nil {
		out.Config = make(map[string]any, len(j.Config))
		for k, v := range j.Config {
			out.Config[k] = v
		}
	}
	return out
}

// Options tunes how a pipeline is executed.
type Options struct {
	// Parallelism caps how many jobs of one level run concurrently.
	// Zero means unbounded within a level.
	Parallelism int `json:"parallelism,omitempty"`

	// JobTimeoutSeconds is the default per-job timeout. Zero means the
	// service default applies.
	JobTimeoutSeconds int `json:"jobTimeoutSeconds,omitempty"`

	// ExecutionTimeoutSeconds bounds the whole execution. Zero means the
	// service default applies; a negative value disables the deadline.
	ExecutionTimeoutSeconds int `json:"executionTimeoutSeconds,omitempty"`

	// UserID identifies the caller for audit entries. Supplied by the
	// platform gateway; the orchestrator does not authenticate.
	UserID string `json:"userId,omitempty"`
}

// PipelineSpec is the immutable definition of a training pipeline DAG.
// Executions copy the spec at creation time, so later changes to the source
// (for example a template update or delete) never affect them.
type PipelineSpec struct {
	Name    string  `json:"name"`
	Jobs    []Job   `json:"jobs"`
	Options Options `json:"options,omitempty"`
}

// Clone returns a deep copy of the spec.
func (s *PipelineSpec) Clone() *PipelineSpec {
	if s == nil {
		return nil
	}
	out := &PipelineSpec{
		Name:    s.Name,
		Options: s.Options,
	}
	if s.Jobs != nil {
		out.Jobs = make([]Job, len(s.Jobs))
		for i, j := range s.Jobs {
			out.Jobs[i] = j.Clone()
		}
	}
	return out
}

// JobByID returns the job with the given id, or false when absent.
func (s *PipelineSpec) JobByID(id string) (Job, bool) {
	for _, j := range s.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}
