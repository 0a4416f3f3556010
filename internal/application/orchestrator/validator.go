package orchestrator

import (
	"fmt"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
)

// Validator validates pipeline dependency graphs and derives execution
// levels.
type Validator struct{}

// NewValidator creates a new pipeline validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a pipeline definition and, when the graph is sound,
// computes its execution levels. It collects every problem it finds instead
// of stopping at the first one, and it is pure: the same spec always yields
// the same result and nothing is persisted here.
//
// Levels are built with Kahn's algorithm: level 0 holds exactly the jobs
// with no dependencies, and every job's dependencies sit in strictly earlier
// levels. Within a level, jobs keep their declaration order so plans and
// logs are stable. When a cycle exists no levels are emitted, not even
// partial ones.
func (v *Validator) Validate(spec *domain.PipelineSpec) *domain.ValidationResult {
	result := &domain.ValidationResult{}

	if spec == nil || len(spec.Jobs) == 0 {
		result.Errors = append(result.Errors, domain.ValidationError{
			Code:    domain.ValidationEmptyPipeline,
			Message: "pipeline must contain at least one job",
		})
		return result
	}
	result.TotalJobs = len(spec.Jobs)

	// Structural pass: ids present and unique, dependencies resolvable.
	declared := make(map[string]bool, len(spec.Jobs))
	for _, job := range spec.Jobs {
		if job.ID == "" {
			result.Errors = append(result.Errors, domain.ValidationError{
				Code:    domain.ValidationMissingID,
				Message: "job id is required",
			})
			continue
		}
		if declared[job.ID] {
			result.Errors = append(result.Errors, domain.ValidationError{
				Code:    domain.ValidationDuplicateJob,
				JobID:   job.ID,
				Message: "duplicate job id",
			})
			continue
		}
		declared[job.ID] = true
	}
	for _, job := range spec.Jobs {
		for _, dep := range job.DependsOn {
			if dep == job.ID {
				result.Errors = append(result.Errors, domain.ValidationError{
					Code:    domain.ValidationSelfDependency,
					JobID:   job.ID,
					Message: "job depends on itself",
				})
				continue
			}
			if !declared[dep] {
				result.Errors = append(result.Errors, domain.ValidationError{
					Code:    domain.ValidationMissingDependency,
					JobID:   job.ID,
					Message: fmt.Sprintf("depends on undeclared job %q", dep),
				})
			}
		}
	}
	if len(result.Errors) > 0 {
		return result
	}

	// Kahn's algorithm: repeatedly peel off all jobs whose remaining
	// in-degree is zero; each peel is one execution level.
	inDegree := make(map[string]int, len(spec.Jobs))
	dependents := make(map[string][]string, len(spec.Jobs))
	for _, job := range spec.Jobs {
		inDegree[job.ID] = len(job.DependsOn)
		for _, dep := range job.DependsOn {
			dependents[dep] = append(dependents[dep], job.ID)
		}
	}

	var levels [][]string
	remaining := len(spec.Jobs)

	current := make([]string, 0)
	for _, job := range spec.Jobs {
		if inDegree[job.ID] == 0 {
			current = append(current, job.ID)
		}
	}

	for len(current) > 0 {
		levels = append(levels, current)
		remaining -= len(current)

		ready := make(map[string]bool)
		for _, id := range current {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					ready[dependent] = true
				}
			}
		}

		// Rebuild the next level in declaration order.
		next := make([]string, 0, len(ready))
		for _, job := range spec.Jobs {
			if ready[job.ID] {
				next = append(next, job.ID)
			}
		}
		current = next
	}

	if remaining > 0 {
		// Every job left with a positive in-degree sits on, or behind, a
		// dependency cycle. Name each one.
		for _, job := range spec.Jobs {
			if inDegree[job.ID] > 0 {
				result.Errors = append(result.Errors, domain.ValidationError{
					Code:    domain.ValidationCycleDetected,
					JobID:   job.ID,
					Message: "job is part of a dependency cycle or depends on one",
				})
			}
		}
		return result
	}

	result.Valid = true
	result.ExecutionLevels = levels
	for _, level := range levels {
		if len(level) > result.MaxParallelJobs {
			result.MaxParallelJobs = len(level)
		}
	}
	return result
}
