package steps

import (
	"context"
	"time"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// Noop is a step executor that succeeds immediately. It backs dry runs and
// tests, and honors an optional "delayMs" config key for exercising
// timeouts and parallelism.
type Noop struct{}

// NewNoop creates a no-op step executor.
func NewNoop() *Noop {
	return &Noop{}
}

// Execute implements ports.StepExecutor.
func (n *Noop) Execute(ctx context.Context, req ports.StepRequest) (any, error) {
	if raw, ok := req.Config["delayMs"]; ok {
		if ms, ok := raw.(float64); ok && ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return map[string]any{
		"jobId":  req.JobID,
		"status": "ok",
	}, nil
}
