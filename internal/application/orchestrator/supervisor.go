package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

const (
	persistTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// AuditRecorder receives one audit entry per pipeline lifecycle event.
// Record must not block the caller.
type AuditRecorder interface {
	Record(entry domain.AuditEntry)
}

// Supervisor coordinates pipeline executions: it validates submissions,
// plans them into levels and owns every state transition of the executions
// it runs.
type Supervisor struct {
	events    ports.EventBus
	store     ports.ExecutionStore
	audit     AuditRecorder
	metrics   ports.MetricsCollector
	steps     ports.StepResolver
	validator *Validator
	executor  *Executor
	logger    *zap.Logger
	defaults  Defaults

	// Track active runs
	runs sync.Map // map[string]*run
	wg   sync.WaitGroup

	activeExecutions atomic.Int64
	runningJobs      atomic.Int64
}

// NewSupervisor creates a new pipeline supervisor.
func NewSupervisor(
	events ports.EventBus,
	store ports.ExecutionStore,
	audit AuditRecorder,
	metrics ports.MetricsCollector,
	steps ports.StepResolver,
	validator *Validator,
	logger *zap.Logger,
	defaults Defaults,
) *Supervisor {
	return &Supervisor{
		events:    events,
		store:     store,
		audit:     audit,
		metrics:   metrics,
		steps:     steps,
		validator: validator,
		executor:  NewExecutor(steps, logger),
		logger:    logger,
		defaults:  defaults,
	}
}

// Validate checks a pipeline without executing it: the dependency graph
// first, then that every job type resolves to a registered step. Invalid
// submissions leave an audit trail but no other state.
func (s *Supervisor) Validate(ctx context.Context, spec *domain.PipelineSpec) *domain.ValidationResult {
	result := s.validator.Validate(spec)
	if result.Valid {
		for _, job := range spec.Jobs {
			if _, err := s.steps.Resolve(job.Type); err != nil {
				result.Errors = append(result.Errors, domain.ValidationError{
					Code:    domain.ValidationUnknownJobType,
					JobID:   job.ID,
					Message: err.Error(),
				})
			}
		}
		if len(result.Errors) > 0 {
			result.Valid = false
			result.ExecutionLevels = nil
			result.MaxParallelJobs = 0
		}
	}

	if !result.Valid {
		name := ""
		if spec != nil {
			name = spec.Name
		}
		eventType := domain.EventValidationError
		if result.HasCode(domain.ValidationCycleDetected) {
			eventType = domain.EventValidationCycle
		}
		codes := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			codes = append(codes, string(e.Code))
		}
		s.audit.Record(domain.AuditEntry{
			EventType: eventType,
			Level:     domain.AuditLevelError,
			Details: map[string]any{
				"pipeline": name,
				"codes":    codes,
				"errors":   len(result.Errors),
			},
		})
		s.logger.Warn("pipeline validation failed",
			zap.String("pipeline", name),
			zap.Strings("codes", codes))
	}
	return result
}

// Execute validates a pipeline and, when it is sound, starts running it in
// the background. The returned execution is a snapshot taken before the
// first job starts; the validation result is returned in both outcomes so
// callers can report precise errors.
func (s *Supervisor) Execute(ctx context.Context, spec *domain.PipelineSpec) (*domain.Execution, *domain.ValidationResult, error) {
	result := s.Validate(ctx, spec)
	if !result.Valid {
		s.metrics.RecordExecutionSubmitted("rejected")
		return nil, result, result.Err()
	}

	plan := BuildPlan(spec.Clone(), result.ExecutionLevels, s.defaults)
	exec := domain.NewExecution(uuid.New().String(), plan.Spec, plan.Levels)
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		s.logger.Error("failed to store new execution",
			zap.String("execution_id", exec.ID),
			zap.Error(err))
		return nil, result, fmt.Errorf("failed to store execution: %w", err)
	}
	snapshot := exec.Clone()

	r := newRun(s, plan, exec)
	s.runs.Store(exec.ID, r)
	s.wg.Add(1)
	s.execStarted()
	go r.run()

	s.metrics.RecordExecutionSubmitted("accepted")
	s.logger.Info("execution submitted",
		zap.String("execution_id", exec.ID),
		zap.String("pipeline", spec.Name),
		zap.Int("total_jobs", snapshot.TotalJobs),
		zap.Int("levels", len(plan.Levels)),
		zap.Int("max_parallel_jobs", result.MaxParallelJobs))
	return snapshot, result, nil
}

// Get returns the stored record of an execution.
func (s *Supervisor) Get(ctx context.Context, id string) (*domain.Execution, error) {
	exec, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	return exec, nil
}

// List returns stored executions, most recent first.
func (s *Supervisor) List(ctx context.Context, filter ports.ExecutionFilter) ([]*domain.Execution, error) {
	execs, err := s.store.ListExecutions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return execs, nil
}

// Cancel stops a running execution. Cancelling an execution that is already
// terminal is a no-op; an unknown id returns ports.ErrNotFound wrapped.
func (s *Supervisor) Cancel(ctx context.Context, id string) error {
	if val, ok := s.runs.Load(id); ok {
		val.(*run).requestCancel()
		s.logger.Info("execution cancel requested",
			zap.String("execution_id", id))
		return nil
	}

	// No live run: the execution is either terminal already or was orphaned
	// by a restart. Repair the stored record in the latter case.
	exec, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}
	if exec.Status.Terminal() {
		return nil
	}
	return s.finalizeOrphan(ctx, exec, domain.ExecutionStatusCancelled,
		"execution cancelled", domain.EventExecutionCancel)
}

// Recover fails executions that the store still reports as pending or
// running but that no live run backs, which happens after a restart. It
// returns how many records were repaired and is meant to be called once at
// startup, before traffic is admitted.
func (s *Supervisor) Recover(ctx context.Context) (int, error) {
	repaired := 0
	for _, status := range []domain.ExecutionStatus{
		domain.ExecutionStatusPending,
		domain.ExecutionStatusRunning,
	} {
		execs, err := s.store.ListExecutions(ctx, ports.ExecutionFilter{Status: status})
		if err != nil {
			return repaired, fmt.Errorf("failed to list executions: %w", err)
		}
		for _, exec := range execs {
			if _, live := s.runs.Load(exec.ID); live {
				continue
			}
			if err := s.finalizeOrphan(ctx, exec, domain.ExecutionStatusFailed,
				"interrupted by orchestrator restart", domain.EventExecutionFail); err != nil {
				return repaired, err
			}
			repaired++
		}
	}
	if repaired > 0 {
		s.logger.Warn("failed stale executions from previous run",
			zap.Int("count", repaired))
	}
	return repaired, nil
}

// Stats reports the live execution and job gauges.
func (s *Supervisor) Stats() (activeExecutions, runningJobs int) {
	return int(s.activeExecutions.Load()), int(s.runningJobs.Load())
}

// Shutdown cancels every active run and waits for them to settle, or until
// the context expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down pipeline supervisor")

	s.runs.Range(func(_, value any) bool {
		value.(*run).requestCancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("pipeline supervisor shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
}

// finalizeOrphan settles an execution that has no live run behind it.
func (s *Supervisor) finalizeOrphan(ctx context.Context, exec *domain.Execution, status domain.ExecutionStatus, reason string, eventType domain.EventType) error {
	now := time.Now().UTC()
	for _, jr := range exec.Jobs {
		if jr.Status.Terminal() {
			continue
		}
		jr.Status = domain.JobStatusSkipped
		jr.EndedAt = &now
		jr.Error = &domain.JobError{
			Code:    domain.JobErrorSkipped,
			Message: reason,
		}
	}
	exec.Status = status
	exec.Error = reason
	exec.CompletedAt = &now
	exec.Recount()

	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	auditLevel := domain.AuditLevelWarn
	if status == domain.ExecutionStatusFailed {
		auditLevel = domain.AuditLevelError
	}
	s.audit.Record(domain.AuditEntry{
		EventType:   eventType,
		Level:       auditLevel,
		ExecutionID: exec.ID,
		UserID:      exec.Spec.Options.UserID,
		Details: map[string]any{
			"reason": reason,
			"status": string(status),
		},
	})
	s.publish(ports.TopicExecutionEvents, domain.Event{
		Type:        eventType,
		ExecutionID: exec.ID,
		Data: map[string]any{
			"status": string(status),
			"reason": reason,
		},
	})
	s.metrics.RecordExecutionFinished(string(status), exec.Duration())
	s.logger.Warn("finalized orphaned execution",
		zap.String("execution_id", exec.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason))
	return nil
}

// persist writes the current execution state on a detached context so that
// a cancelled run can still record its final state.
func (s *Supervisor) persist(exec *domain.Execution) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		s.logger.Error("failed to persist execution state",
			zap.String("execution_id", exec.ID),
			zap.Error(err))
	}
}

// publish sends an event on a detached context; delivery problems are
// logged, never propagated into the run.
func (s *Supervisor) publish(topic string, event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("execution_id", event.ExecutionID),
			zap.Error(err))
	}
}

func (s *Supervisor) execStarted() {
	s.metrics.SetActiveExecutions(int(s.activeExecutions.Add(1)))
}

func (s *Supervisor) execFinished() {
	s.metrics.SetActiveExecutions(int(s.activeExecutions.Add(-1)))
}

func (s *Supervisor) jobStarted() {
	s.metrics.SetRunningJobs(int(s.runningJobs.Add(1)))
}

func (s *Supervisor) jobFinished() {
	s.metrics.SetRunningJobs(int(s.runningJobs.Add(-1)))
}
