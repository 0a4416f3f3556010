package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// CreateTemplate stores a new template and indexes it by creation time.
func (s *Store) CreateTemplate(ctx context.Context, t *domain.Template) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, templateKey(t.ID), data, 0)
	pipe.ZAdd(ctx, templateIndexKey, redis.Z{
		Score:  float64(t.CreatedAt.UnixNano()),
		Member: t.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store template: %w", err)
	}
	return nil
}

// GetTemplate loads one template.
func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	data, err := s.client.Get(ctx, templateKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("template %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	var t domain.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return &t, nil
}

// UpdateTemplate replaces a stored template.
func (s *Store) UpdateTemplate(ctx context.Context, t *domain.Template) error {
	exists, err := s.client.Exists(ctx, templateKey(t.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check template: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("template %s: %w", t.ID, ports.ErrNotFound)
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	if err := s.client.Set(ctx, templateKey(t.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template and its index entry.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, templateKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("template %s: %w", id, ports.ErrNotFound)
	}
	s.client.ZRem(ctx, templateIndexKey, id)
	return nil
}

// ListTemplates walks the template index newest-first.
func (s *Store) ListTemplates(ctx context.Context, filter ports.TemplateFilter) ([]*domain.Template, error) {
	ids, err := s.client.ZRevRange(ctx, templateIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read template index: %w", err)
	}

	out := make([]*domain.Template, 0)
	for _, id := range ids {
		t, err := s.GetTemplate(ctx, id)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				s.client.ZRem(ctx, templateIndexKey, id)
				continue
			}
			return nil, err
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.Scheduled && t.Schedule == "" {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
