package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// PipelineValidator checks a pipeline definition. Satisfied by the
// orchestrator supervisor, which also verifies that every job type resolves
// to a registered step.
type PipelineValidator interface {
	Validate(ctx context.Context, spec *domain.PipelineSpec) *domain.ValidationResult
}

// Registry is the template catalog: CRUD over stored pipeline definitions,
// independent of execution. A stored template is always instantiable as a
// valid execution: create and update reject definitions that do not pass
// validation.
type Registry struct {
	store     ports.TemplateStore
	validator PipelineValidator
	logger    *zap.Logger
}

// NewRegistry creates a template registry.
func NewRegistry(store ports.TemplateStore, validator PipelineValidator, logger *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// Patch carries a partial template update. Nil fields are left unchanged;
// an empty non-nil Schedule clears the cron schedule.
type Patch struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	Category    *string              `json:"category,omitempty"`
	Schedule    *string              `json:"schedule,omitempty"`
	Config      *domain.PipelineSpec `json:"config,omitempty"`
}

// Create validates and stores a new template. On a validation failure the
// result carries the errors and nothing is persisted.
func (r *Registry) Create(ctx context.Context, t *domain.Template) (*domain.Template, *domain.ValidationResult, error) {
	if t.Name == "" {
		return nil, nil, fmt.Errorf("template name is required")
	}
	result := r.validator.Validate(ctx, &t.Config)
	if !result.Valid {
		return nil, result, result.Err()
	}
	if err := validateSchedule(t.Schedule); err != nil {
		return nil, nil, err
	}

	stored := t.Clone()
	stored.ID = uuid.New().String()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if err := r.store.CreateTemplate(ctx, stored); err != nil {
		return nil, nil, fmt.Errorf("failed to store template: %w", err)
	}

	r.logger.Info("template created",
		zap.String("template_id", stored.ID),
		zap.String("name", stored.Name),
		zap.String("category", stored.Category))
	return stored, result, nil
}

// Get returns a stored template.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Template, error) {
	t, err := r.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return t, nil
}

// List returns stored templates, optionally narrowed by category.
func (r *Registry) List(ctx context.Context, filter ports.TemplateFilter) ([]*domain.Template, error) {
	ts, err := r.store.ListTemplates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return ts, nil
}

// Update applies a patch to a stored template. A patched pipeline config is
// re-validated before anything is persisted, so an update can never leave an
// uninstantiable template behind.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) (*domain.Template, *domain.ValidationResult, error) {
	t, err := r.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template: %w", err)
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, nil, fmt.Errorf("template name is required")
		}
		t.Name = *patch.Name
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Category != nil {
		t.Category = *patch.Category
	}
	if patch.Schedule != nil {
		if err := validateSchedule(*patch.Schedule); err != nil {
			return nil, nil, err
		}
		t.Schedule = *patch.Schedule
	}
	if patch.Config != nil {
		t.Config = *patch.Config.Clone()
	}

	result := r.validator.Validate(ctx, &t.Config)
	if !result.Valid {
		return nil, result, result.Err()
	}

	t.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateTemplate(ctx, t); err != nil {
		return nil, nil, fmt.Errorf("failed to store template: %w", err)
	}

	r.logger.Info("template updated",
		zap.String("template_id", t.ID),
		zap.String("name", t.Name))
	return t, result, nil
}

// Delete removes a template. Executions already created from it keep their
// copied definition and are not affected.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	r.logger.Info("template deleted", zap.String("template_id", id))
	return nil
}

// Instantiate returns an independent copy of the template's pipeline,
// ready to execute. The copy's name falls back to the template name when
// the embedded pipeline has none.
func (r *Registry) Instantiate(ctx context.Context, id string) (*domain.PipelineSpec, error) {
	t, err := r.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	spec := t.Config.Clone()
	if spec.Name == "" {
		spec.Name = t.Name
	}
	return spec, nil
}

// validateSchedule accepts an empty schedule or a standard 5-field cron
// expression.
func validateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}
