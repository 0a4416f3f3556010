package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// Executor starts pipeline executions. Satisfied by the orchestrator
// supervisor.
type Executor interface {
	Execute(ctx context.Context, spec *domain.PipelineSpec) (*domain.Execution, *domain.ValidationResult, error)
}

// TemplateSource supplies scheduled templates and their pipelines.
// Satisfied by the template registry.
type TemplateSource interface {
	List(ctx context.Context, filter ports.TemplateFilter) ([]*domain.Template, error)
	Instantiate(ctx context.Context, id string) (*domain.PipelineSpec, error)
}

// Config tunes the scheduler.
type Config struct {
	// ReconcileInterval is how often cron entries are reconciled against
	// stored templates.
	ReconcileInterval time.Duration
	// ExecuteTimeout bounds one triggered submission.
	ExecuteTimeout time.Duration
}

// Scheduler triggers executions of templates that carry a cron schedule.
// It periodically reconciles its cron entries against the template store,
// so created, updated and deleted schedules take effect without a restart.
type Scheduler struct {
	templates TemplateSource
	executor  Executor
	logger    *zap.Logger
	cfg       Config

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]scheduledEntry // template id -> live cron entry
	stop    chan struct{}
	stopped sync.WaitGroup
	running bool
}

type scheduledEntry struct {
	schedule string
	id       cron.EntryID
}

// New creates a scheduler. Call Start to activate it.
func New(templates TemplateSource, executor Executor, logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = 30 * time.Second
	}
	return &Scheduler{
		templates: templates,
		executor:  executor,
		logger:    logger,
		cfg:       cfg,
		cron:      cron.New(),
		entries:   make(map[string]scheduledEntry),
		stop:      make(chan struct{}),
	}
}

// Start runs an initial reconcile, starts the cron runner and the
// background reconcile loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Reconcile(ctx); err != nil {
		return fmt.Errorf("initial schedule reconcile failed: %w", err)
	}
	s.cron.Start()

	s.stopped.Add(1)
	go s.reconcileLoop()

	s.logger.Info("template scheduler started",
		zap.Duration("reconcile_interval", s.cfg.ReconcileInterval),
		zap.Int("scheduled_templates", s.EntryCount()))
	return nil
}

// Stop halts the cron runner and waits for an in-flight trigger to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.stopped.Wait()
	<-s.cron.Stop().Done()
	s.logger.Info("template scheduler stopped")
}

// Reconcile aligns cron entries with stored templates: new schedules are
// added, changed ones replaced, and entries whose template lost its
// schedule or was deleted are removed.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	stored, err := s.templates.List(ctx, ports.TemplateFilter{Scheduled: true})
	if err != nil {
		return fmt.Errorf("failed to list scheduled templates: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(stored))
	for _, t := range stored {
		seen[t.ID] = true
		entry, ok := s.entries[t.ID]
		if ok && entry.schedule == t.Schedule {
			continue
		}
		if ok {
			s.cron.Remove(entry.id)
		}

		templateID := t.ID
		entryID, err := s.cron.AddFunc(t.Schedule, func() { s.trigger(templateID) })
		if err != nil {
			// The registry validates schedules on write; a stored bad one
			// is skipped, not fatal.
			s.logger.Error("failed to schedule template",
				zap.String("template_id", t.ID),
				zap.String("schedule", t.Schedule),
				zap.Error(err))
			delete(s.entries, t.ID)
			continue
		}
		s.entries[t.ID] = scheduledEntry{schedule: t.Schedule, id: entryID}
		s.logger.Info("template scheduled",
			zap.String("template_id", t.ID),
			zap.String("name", t.Name),
			zap.String("schedule", t.Schedule))
	}

	for id, entry := range s.entries {
		if seen[id] {
			continue
		}
		s.cron.Remove(entry.id)
		delete(s.entries, id)
		s.logger.Info("template unscheduled", zap.String("template_id", id))
	}
	return nil
}

// EntryCount reports how many templates are currently scheduled.
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// trigger submits one execution of the template's pipeline. The pipeline is
// instantiated at fire time, so template edits between fires take effect.
func (s *Scheduler) trigger(templateID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExecuteTimeout)
	defer cancel()

	spec, err := s.templates.Instantiate(ctx, templateID)
	if err != nil {
		s.logger.Error("scheduled template no longer instantiable",
			zap.String("template_id", templateID),
			zap.Error(err))
		return
	}

	exec, _, err := s.executor.Execute(ctx, spec)
	if err != nil {
		s.logger.Error("scheduled execution failed to start",
			zap.String("template_id", templateID),
			zap.String("pipeline", spec.Name),
			zap.Error(err))
		return
	}
	s.logger.Info("scheduled execution started",
		zap.String("template_id", templateID),
		zap.String("execution_id", exec.ID),
		zap.String("pipeline", spec.Name))
}

func (s *Scheduler) reconcileLoop() {
	defer s.stopped.Done()
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReconcileInterval)
			if err := s.Reconcile(ctx); err != nil {
				s.logger.Error("schedule reconcile failed", zap.Error(err))
			}
			cancel()
		}
	}
}
