package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// Executor runs a single step attempt for a job and classifies the outcome.
// It never retries and never touches execution state; both are the
// supervisor's concern.
type Executor struct {
	steps  ports.StepResolver
	logger *zap.Logger
}

// NewExecutor creates a job executor backed by the given step resolver.
func NewExecutor(steps ports.StepResolver, logger *zap.Logger) *Executor {
	return &Executor{
		steps:  steps,
		logger: logger,
	}
}

// Run resolves the step implementation for the request's job type and
// invokes it once under the given timeout. A zero timeout leaves only the
// parent context's bounds in place. The returned JobError is nil exactly
// when the attempt succeeded.
func (e *Executor) Run(ctx context.Context, req ports.StepRequest, timeout time.Duration) (any, *domain.JobError) {
	step, err := e.steps.Resolve(req.Type)
	if err != nil {
		return nil, &domain.JobError{
			Code:    domain.JobErrorStep,
			Message: err.Error(),
		}
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e.logger.Debug("running step",
		zap.String("execution_id", req.ExecutionID),
		zap.String("job_id", req.JobID),
		zap.String("job_type", req.Type),
		zap.Int("attempt", req.Attempt))

	result, err := step.Execute(runCtx, req)
	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(err, ports.ErrSecurityViolation):
		return nil, &domain.JobError{
			Code:    domain.JobErrorSecurity,
			Message: err.Error(),
		}
	case errors.Is(err, context.DeadlineExceeded),
		runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		return nil, &domain.JobError{
			Code:    domain.JobErrorTimeout,
			Message: fmt.Sprintf("step did not finish within %s", timeout),
		}
	default:
		return nil, &domain.JobError{
			Code:    domain.JobErrorStep,
			Message: err.Error(),
		}
	}
}
