package ports

import (
	"context"
	"errors"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
)

// ErrNotFound is returned by stores when the requested record does not
// exist. Adapters wrap it so callers can match with errors.Is.
var ErrNotFound = errors.New("not found")

// ExecutionFilter narrows ListExecutions. Zero values mean "any".
type ExecutionFilter struct {
	Status domain.ExecutionStatus
	Limit  int
}

// ExecutionStore persists executions. Implementations must return defensive
// copies: a returned execution is owned by the caller.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, e *domain.Execution) error
	GetExecution(ctx context.Context, id string) (*domain.Execution, error)
	UpdateExecution(ctx context.Context, e *domain.Execution) error
	// ListExecutions returns executions most-recent-first.
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*domain.Execution, error)
}

// TemplateFilter narrows ListTemplates. Zero values mean "any".
type TemplateFilter struct {
	Category string
	// Scheduled selects only templates carrying a cron schedule.
	Scheduled bool
	Limit     int
}

// TemplateStore persists pipeline templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *domain.Template) error
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	UpdateTemplate(ctx context.Context, t *domain.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, filter TemplateFilter) ([]*domain.Template, error)
}

// AuditStore persists the append-only audit trail.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *domain.AuditEntry) error
	// QueryAudit returns entries most-recent-first.
	QueryAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error)
}
