package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// Store implements ExecutionStore, TemplateStore and AuditStore with
// in-memory maps. Records are deep-copied on the way in and out, so callers
// never share mutable state with the store. Intended for tests and local
// development.
type Store struct {
	mu         sync.RWMutex
	executions map[string]*domain.Execution
	execOrder  []string // creation order, oldest first
	templates  map[string]*domain.Template
	audit      []*domain.AuditEntry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		executions: make(map[string]*domain.Execution),
		templates:  make(map[string]*domain.Template),
	}
}

// CreateExecution stores a new execution.
func (s *Store) CreateExecution(ctx context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[e.ID]; ok {
		return fmt.Errorf("execution %s already exists", e.ID)
	}
	s.executions[e.ID] = e.Clone()
	s.execOrder = append(s.execOrder, e.ID)
	return nil
}

// GetExecution returns a copy of the stored execution.
func (s *Store) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, ports.ErrNotFound)
	}
	return e.Clone(), nil
}

// UpdateExecution replaces the stored execution state.
func (s *Store) UpdateExecution(ctx context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[e.ID]; !ok {
		return fmt.Errorf("execution %s: %w", e.ID, ports.ErrNotFound)
	}
	s.executions[e.ID] = e.Clone()
	return nil
}

// ListExecutions returns executions most-recent-first.
func (s *Store) ListExecutions(ctx context.Context, filter ports.ExecutionFilter) ([]*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Execution, 0, len(s.execOrder))
	for i := len(s.execOrder) - 1; i >= 0; i-- {
		e := s.executions[s.execOrder[i]]
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// CreateTemplate stores a new template.
func (s *Store) CreateTemplate(ctx context.Context, t *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[t.ID]; ok {
		return fmt.Errorf("template %s already exists", t.ID)
	}
	s.templates[t.ID] = t.Clone()
	return nil
}

// GetTemplate returns a copy of the stored template.
func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, ports.ErrNotFound)
	}
	return t.Clone(), nil
}

// UpdateTemplate replaces a stored template.
func (s *Store) UpdateTemplate(ctx context.Context, t *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[t.ID]; !ok {
		return fmt.Errorf("template %s: %w", t.ID, ports.ErrNotFound)
	}
	s.templates[t.ID] = t.Clone()
	return nil
}

// DeleteTemplate removes a stored template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return fmt.Errorf("template %s: %w", id, ports.ErrNotFound)
	}
	delete(s.templates, id)
	return nil
}

// ListTemplates returns templates sorted by creation time, newest first.
func (s *Store) ListTemplates(ctx context.Context, filter ports.TemplateFilter) ([]*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Template, 0, len(s.templates))
	for _, t := range s.templates {
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.Scheduled && t.Schedule == "" {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// AppendAudit stores one audit entry. Entries are never updated or deleted.
func (s *Store) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := *e
	s.audit = append(s.audit, &entry)
	return nil
}

// QueryAudit returns matching entries most-recent-first.
func (s *Store) QueryAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AuditEntry, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if !filter.Matches(e) {
			continue
		}
		entry := *e
		out = append(out, &entry)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
