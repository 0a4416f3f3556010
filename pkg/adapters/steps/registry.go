package steps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// Registry maps job types to their step executors. The orchestrator
// resolves every job type through it before an execution starts, so a
// pipeline naming an unregistered type is rejected up front.
type Registry struct {
	mu       sync.RWMutex
	steps    map[string]ports.StepExecutor
	fallback ports.StepExecutor
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]ports.StepExecutor),
	}
}

// Register binds a job type to an executor, replacing any previous binding.
func (r *Registry) Register(jobType string, exec ports.StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[jobType] = exec
}

// RegisterFunc binds a job type to a plain function.
func (r *Registry) RegisterFunc(jobType string, fn func(ctx context.Context, req ports.StepRequest) (any, error)) {
	r.Register(jobType, ports.StepExecutorFunc(fn))
}

// SetDefault installs a fallback executor for job types with no explicit
// binding. Without one, unknown types fail resolution.
func (r *Registry) SetDefault(exec ports.StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = exec
}

// Resolve implements ports.StepResolver.
func (r *Registry) Resolve(jobType string) (ports.StepExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if exec, ok := r.steps[jobType]; ok {
		return exec, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no step executor registered for job type %q", jobType)
}

// Types returns the registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.steps))
	for t := range r.steps {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
