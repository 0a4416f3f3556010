package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/application/scheduler"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// fakeTemplates serves a mutable set of templates.
type fakeTemplates struct {
	mu        sync.Mutex
	templates map[string]*domain.Template
}

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{templates: make(map[string]*domain.Template)}
}

func (f *fakeTemplates) put(t *domain.Template) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[t.ID] = t
}

func (f *fakeTemplates) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.templates, id)
}

func (f *fakeTemplates) List(ctx context.Context, filter ports.TemplateFilter) ([]*domain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Template
	for _, t := range f.templates {
		if filter.Scheduled && t.Schedule == "" {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (f *fakeTemplates) Instantiate(ctx context.Context, id string) (*domain.PipelineSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.templates[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return t.Config.Clone(), nil
}

// countingExecutor records every submitted pipeline.
type countingExecutor struct {
	mu    sync.Mutex
	specs []*domain.PipelineSpec
}

func (c *countingExecutor) Execute(ctx context.Context, spec *domain.PipelineSpec) (*domain.Execution, *domain.ValidationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs = append(c.specs, spec)
	return &domain.Execution{ID: "exec", Name: spec.Name}, &domain.ValidationResult{Valid: true}, nil
}

func (c *countingExecutor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.specs)
}

func scheduledTemplate(id, schedule string) *domain.Template {
	return &domain.Template{
		ID:       id,
		Name:     id,
		Schedule: schedule,
		Config: domain.PipelineSpec{
			Name: id,
			Jobs: []domain.Job{{ID: "load", Type: "noop"}},
		},
	}
}

func TestScheduler(t *testing.T) {
	ctx := context.Background()

	t.Run("Should add and remove entries on reconcile", func(t *testing.T) {
		store := newFakeTemplates()
		exec := &countingExecutor{}
		s := scheduler.New(store, exec, zap.NewNop(), scheduler.Config{ReconcileInterval: time.Hour})

		store.put(scheduledTemplate("tpl-1", "0 3 * * *"))
		store.put(scheduledTemplate("tpl-2", "@hourly"))
		require.NoError(t, s.Reconcile(ctx))
		assert.Equal(t, 2, s.EntryCount())

		store.remove("tpl-2")
		require.NoError(t, s.Reconcile(ctx))
		assert.Equal(t, 1, s.EntryCount())
	})

	t.Run("Should replace an entry when the schedule changes", func(t *testing.T) {
		store := newFakeTemplates()
		exec := &countingExecutor{}
		s := scheduler.New(store, exec, zap.NewNop(), scheduler.Config{ReconcileInterval: time.Hour})

		store.put(scheduledTemplate("tpl-1", "0 3 * * *"))
		require.NoError(t, s.Reconcile(ctx))
		store.put(scheduledTemplate("tpl-1", "0 4 * * *"))
		require.NoError(t, s.Reconcile(ctx))
		assert.Equal(t, 1, s.EntryCount())
	})

	t.Run("Should trigger executions on fire", func(t *testing.T) {
		store := newFakeTemplates()
		exec := &countingExecutor{}
		s := scheduler.New(store, exec, zap.NewNop(), scheduler.Config{ReconcileInterval: time.Hour})

		store.put(scheduledTemplate("tpl-1", "@every 50ms"))
		require.NoError(t, s.Start(ctx))
		defer s.Stop()

		assert.Eventually(t, func() bool { return exec.count() >= 2 },
			2*time.Second, 10*time.Millisecond)
	})

	t.Run("Should skip a template deleted between fire and instantiate", func(t *testing.T) {
		store := newFakeTemplates()
		exec := &countingExecutor{}
		s := scheduler.New(store, exec, zap.NewNop(), scheduler.Config{ReconcileInterval: time.Hour})

		store.put(scheduledTemplate("tpl-1", "@every 50ms"))
		require.NoError(t, s.Start(ctx))
		store.remove("tpl-1")
		time.Sleep(150 * time.Millisecond)
		s.Stop()

		assert.Zero(t, exec.count())
	})
}
