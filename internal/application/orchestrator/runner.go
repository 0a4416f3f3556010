package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// run drives a single execution level by level. All mutations of the
// execution record happen on the run's own goroutine; job attempts run on
// worker goroutines and report back through the outcomes channel.
type run struct {
	sup  *Supervisor
	plan *Plan
	exec *domain.Execution

	ctx             context.Context
	cancel          context.CancelFunc
	cancelRequested atomic.Bool
}

// jobOutcome is what a worker goroutine reports after one step attempt.
type jobOutcome struct {
	jobID    string
	result   any
	err      *domain.JobError
	duration time.Duration
}

func newRun(sup *Supervisor, plan *Plan, exec *domain.Execution) *run {
	ctx := context.Background()
	var cancel context.CancelFunc
	if d := plan.ExecutionTimeout(); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	return &run{
		sup:    sup,
		plan:   plan,
		exec:   exec,
		ctx:    ctx,
		cancel: cancel,
	}
}

// requestCancel asks the run to stop. The run goroutine observes the
// cancelled context and performs the actual state transitions itself.
func (r *run) requestCancel() {
	r.cancelRequested.Store(true)
	r.cancel()
}

func (r *run) interrupted() bool {
	return r.ctx.Err() != nil
}

func (r *run) run() {
	defer r.sup.wg.Done()
	defer r.sup.execFinished()
	defer r.sup.runs.Delete(r.exec.ID)
	defer r.cancel()

	start := time.Now().UTC()
	r.exec.Status = domain.ExecutionStatusRunning
	r.exec.StartedAt = &start
	r.sup.persist(r.exec)
	r.audit(domain.EventExecutionStart, domain.AuditLevelInfo, "", map[string]any{
		"pipeline":   r.exec.Name,
		"total_jobs": r.exec.TotalJobs,
		"levels":     len(r.plan.Levels),
	})
	r.publishExecution(domain.EventExecutionStart, nil)
	r.sup.logger.Info("execution started",
		zap.String("execution_id", r.exec.ID),
		zap.String("pipeline", r.exec.Name),
		zap.Int("total_jobs", r.exec.TotalJobs),
		zap.Int("levels", len(r.plan.Levels)))

	for _, level := range r.plan.Levels {
		if r.interrupted() {
			break
		}
		r.runLevel(level)
	}

	r.finalize()
}

// runLevel runs one execution level to completion. It admits jobs in
// declaration order up to the parallelism cap and applies every outcome
// before touching the next level, so a level acts as a barrier.
func (r *run) runLevel(level []string) {
	// Jobs whose dependencies did not complete are skipped up front; their
	// step executor is never invoked.
	runnable := make([]string, 0, len(level))
	for _, jobID := range level {
		if dep, blocked := r.blockedDependency(jobID); blocked {
			r.skipJob(jobID, fmt.Sprintf("dependency %q did not complete", dep))
			continue
		}
		runnable = append(runnable, jobID)
	}
	if len(runnable) == 0 {
		return
	}

	limit := r.plan.Parallelism()
	if limit <= 0 || limit > len(runnable) {
		limit = len(runnable)
	}

	outcomes := make(chan jobOutcome)
	inFlight := 0
	next := 0

	for {
		for !r.interrupted() && next < len(runnable) && inFlight < limit {
			r.startJob(runnable[next], outcomes)
			next++
			inFlight++
		}
		if inFlight == 0 {
			return
		}

		select {
		case out := <-outcomes:
			inFlight--
			if r.applyOutcome(out, outcomes) {
				inFlight++
			}
		case <-r.ctx.Done():
			r.markInterrupted()
			// Attempts already in flight run to completion but their
			// results are discarded; the run is terminal now.
			for inFlight > 0 {
				<-outcomes
				inFlight--
				r.sup.jobFinished()
			}
			return
		}
	}
}

// blockedDependency reports the first dependency of the given job that did
// not complete. Dependencies always sit in earlier levels, so they are
// terminal by the time the job is considered.
func (r *run) blockedDependency(jobID string) (string, bool) {
	for _, dep := range r.plan.Job(jobID).DependsOn {
		if r.exec.Jobs[dep].Status != domain.JobStatusCompleted {
			return dep, true
		}
	}
	return "", false
}

func (r *run) startJob(jobID string, outcomes chan<- jobOutcome) {
	now := time.Now().UTC()
	jr := r.exec.Jobs[jobID]
	jr.Status = domain.JobStatusRunning
	jr.StartedAt = &now
	r.sup.persist(r.exec)
	r.sup.jobStarted()

	job := r.plan.Job(jobID)
	r.audit(domain.EventJobStart, domain.AuditLevelInfo, jobID, map[string]any{
		"job_type": job.Type,
	})
	r.publishJob(domain.EventJobStart, jobID, nil)
	r.sup.logger.Info("job started",
		zap.String("execution_id", r.exec.ID),
		zap.String("job_id", jobID),
		zap.String("job_type", job.Type))

	r.launchAttempt(job, outcomes)
}

// launchAttempt spawns a worker goroutine for one step attempt. Attempts is
// bumped here, on the run goroutine, before the worker starts.
func (r *run) launchAttempt(job domain.Job, outcomes chan<- jobOutcome) {
	jr := r.exec.Jobs[job.ID]
	jr.Attempts++
	req := ports.StepRequest{
		ExecutionID: r.exec.ID,
		JobID:       job.ID,
		JobName:     job.Name,
		Type:        job.Type,
		Attempt:     jr.Attempts,
		Config:      job.Config,
	}
	timeout := r.plan.JobTimeout(job)

	go func() {
		started := time.Now()
		result, jobErr := r.sup.executor.Run(r.ctx, req, timeout)
		outcomes <- jobOutcome{
			jobID:    job.ID,
			result:   result,
			err:      jobErr,
			duration: time.Since(started),
		}
	}()
}

// applyOutcome settles one attempt. It returns true when the job was
// relaunched for a retry, meaning the level slot stays occupied.
func (r *run) applyOutcome(out jobOutcome, outcomes chan<- jobOutcome) bool {
	job := r.plan.Job(out.jobID)
	jr := r.exec.Jobs[out.jobID]

	// Security violations are never retried; a repeat attempt would hit the
	// same policy. Everything else retries up to the job's allowance.
	if out.err != nil && out.err.Code != domain.JobErrorSecurity &&
		jr.Attempts <= r.plan.Retries(job) && !r.interrupted() {
		r.audit(domain.EventJobRetry, domain.AuditLevelWarn, out.jobID, map[string]any{
			"attempt": jr.Attempts,
			"error":   out.err.Message,
		})
		r.publishJob(domain.EventJobRetry, out.jobID, map[string]any{
			"attempt": jr.Attempts,
			"error":   out.err.Message,
		})
		r.sup.logger.Warn("job attempt failed, retrying",
			zap.String("execution_id", r.exec.ID),
			zap.String("job_id", out.jobID),
			zap.Int("attempt", jr.Attempts),
			zap.String("error", out.err.Message))
		r.launchAttempt(job, outcomes)
		return true
	}

	now := time.Now().UTC()
	jr.EndedAt = &now
	r.sup.jobFinished()

	if out.err == nil {
		jr.Status = domain.JobStatusCompleted
		jr.Result = out.result
		r.exec.Recount()
		r.sup.metrics.RecordJobExecuted(job.Type, string(jr.Status), out.duration)
		r.audit(domain.EventJobComplete, domain.AuditLevelInfo, out.jobID, map[string]any{
			"attempts":    jr.Attempts,
			"duration_ms": out.duration.Milliseconds(),
		})
		r.publishJob(domain.EventJobComplete, out.jobID, nil)
		r.sup.logger.Info("job completed",
			zap.String("execution_id", r.exec.ID),
			zap.String("job_id", out.jobID),
			zap.Int("attempts", jr.Attempts),
			zap.Duration("duration", out.duration))
	} else {
		jr.Status = domain.JobStatusFailed
		jr.Error = out.err
		r.exec.Recount()
		r.sup.metrics.RecordJobExecuted(job.Type, string(jr.Status), out.duration)

		eventType := domain.EventJobFail
		if out.err.Code == domain.JobErrorTimeout {
			eventType = domain.EventJobTimeout
		}
		r.audit(eventType, domain.AuditLevelError, out.jobID, map[string]any{
			"code":     string(out.err.Code),
			"error":    out.err.Message,
			"attempts": jr.Attempts,
		})
		r.publishJob(eventType, out.jobID, map[string]any{
			"code":  string(out.err.Code),
			"error": out.err.Message,
		})
		if out.err.Code == domain.JobErrorSecurity {
			r.audit(domain.EventSecurityViolation, domain.AuditLevelCritical, out.jobID, map[string]any{
				"job_type": job.Type,
				"error":    out.err.Message,
			})
		}
		r.sup.logger.Error("job failed",
			zap.String("execution_id", r.exec.ID),
			zap.String("job_id", out.jobID),
			zap.String("code", string(out.err.Code)),
			zap.String("error", out.err.Message),
			zap.Int("attempts", jr.Attempts))
	}

	r.sup.persist(r.exec)
	return false
}

// skipJob records a dependency-driven skip and persists it.
func (r *run) skipJob(jobID, reason string) {
	r.markJobSkipped(jobID, reason)
	r.sup.persist(r.exec)
}

func (r *run) markJobSkipped(jobID, reason string) {
	now := time.Now().UTC()
	jr := r.exec.Jobs[jobID]
	jr.Status = domain.JobStatusSkipped
	jr.EndedAt = &now
	jr.Error = &domain.JobError{
		Code:    domain.JobErrorSkipped,
		Message: reason,
	}
	r.exec.Recount()

	job := r.plan.Job(jobID)
	r.sup.metrics.RecordJobExecuted(job.Type, string(domain.JobStatusSkipped), 0)
	r.audit(domain.EventJobSkip, domain.AuditLevelWarn, jobID, map[string]any{
		"reason": reason,
	})
	r.publishJob(domain.EventJobSkip, jobID, map[string]any{
		"reason": reason,
	})
	r.sup.logger.Info("job skipped",
		zap.String("execution_id", r.exec.ID),
		zap.String("job_id", jobID),
		zap.String("reason", reason))
}

// markInterrupted settles the run after a cancel or an execution-level
// timeout: every non-terminal job becomes skipped and the execution goes
// terminal.
func (r *run) markInterrupted() {
	if r.exec.Status.Terminal() {
		return
	}

	status := domain.ExecutionStatusCancelled
	eventType := domain.EventExecutionCancel
	auditLevel := domain.AuditLevelWarn
	reason := "execution cancelled"
	if !r.cancelRequested.Load() && r.ctx.Err() == context.DeadlineExceeded {
		status = domain.ExecutionStatusFailed
		eventType = domain.EventExecutionTimeout
		auditLevel = domain.AuditLevelError
		reason = fmt.Sprintf("execution did not finish within %s", r.plan.ExecutionTimeout())
	}

	for jobID, jr := range r.exec.Jobs {
		if jr.Status.Terminal() {
			continue
		}
		r.markJobSkipped(jobID, reason)
	}

	now := time.Now().UTC()
	r.exec.Status = status
	r.exec.Error = reason
	r.exec.CompletedAt = &now
	r.exec.Recount()
	r.sup.persist(r.exec)

	r.audit(eventType, auditLevel, "", map[string]any{
		"reason": reason,
	})
	r.publishExecution(eventType, map[string]any{
		"reason": reason,
	})
	r.sup.metrics.RecordExecutionFinished(string(status), r.exec.Duration())
	r.sup.logger.Warn("execution interrupted",
		zap.String("execution_id", r.exec.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason))
}

// finalize settles the execution once every level has been processed.
func (r *run) finalize() {
	if r.exec.Status.Terminal() {
		return
	}
	if r.interrupted() {
		r.markInterrupted()
		return
	}

	now := time.Now().UTC()
	status := domain.ExecutionStatusCompleted
	eventType := domain.EventExecutionComplete
	auditLevel := domain.AuditLevelInfo
	if r.exec.CompletedJobs != r.exec.TotalJobs {
		status = domain.ExecutionStatusFailed
		eventType = domain.EventExecutionFail
		auditLevel = domain.AuditLevelError
		r.exec.Error = "one or more jobs did not complete"
	}
	r.exec.Status = status
	r.exec.CompletedAt = &now
	r.exec.Recount()
	r.sup.persist(r.exec)

	r.audit(eventType, auditLevel, "", map[string]any{
		"status":         string(status),
		"completed_jobs": r.exec.CompletedJobs,
		"failed_jobs":    r.exec.FailedJobs,
		"duration_ms":    r.exec.Duration().Milliseconds(),
	})
	r.publishExecution(eventType, nil)
	r.sup.metrics.RecordExecutionFinished(string(status), r.exec.Duration())
	r.sup.logger.Info("execution finished",
		zap.String("execution_id", r.exec.ID),
		zap.String("status", string(status)),
		zap.Int("completed_jobs", r.exec.CompletedJobs),
		zap.Int("failed_jobs", r.exec.FailedJobs),
		zap.Duration("duration", r.exec.Duration()))
}

func (r *run) audit(eventType domain.EventType, level domain.AuditLevel, jobID string, details map[string]any) {
	r.sup.audit.Record(domain.AuditEntry{
		EventType:   eventType,
		Level:       level,
		ExecutionID: r.exec.ID,
		JobID:       jobID,
		UserID:      r.plan.Spec.Options.UserID,
		Details:     details,
	})
}

func (r *run) publishExecution(eventType domain.EventType, extra map[string]any) {
	data := map[string]any{
		"status":   string(r.exec.Status),
		"progress": r.exec.Progress,
	}
	for k, v := range extra {
		data[k] = v
	}
	r.sup.publish(ports.TopicExecutionEvents, domain.Event{
		Type:        eventType,
		ExecutionID: r.exec.ID,
		Data:        data,
	})
}

func (r *run) publishJob(eventType domain.EventType, jobID string, extra map[string]any) {
	data := map[string]any{
		"status":   string(r.exec.Jobs[jobID].Status),
		"progress": r.exec.Progress,
	}
	for k, v := range extra {
		data[k] = v
	}
	r.sup.publish(ports.TopicJobEvents, domain.Event{
		Type:        eventType,
		ExecutionID: r.exec.ID,
		JobID:       jobID,
		Data:        data,
	})
}
