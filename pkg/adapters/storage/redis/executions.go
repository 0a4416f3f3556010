package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// CreateExecution stores a new execution and indexes it by creation time.
func (s *Store) CreateExecution(ctx context.Context, e *domain.Execution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, executionKey(e.ID), data, s.executionTTL)
	pipe.ZAdd(ctx, executionIndexKey, redis.Z{
		Score:  float64(e.CreatedAt.UnixNano()),
		Member: e.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store execution: %w", err)
	}

	s.logger.Debug("execution stored",
		zap.String("execution_id", e.ID),
		zap.String("status", string(e.Status)))
	return nil
}

// GetExecution loads one execution.
func (s *Store) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	data, err := s.client.Get(ctx, executionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("execution %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	var e domain.Execution
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &e, nil
}

// UpdateExecution replaces the stored execution state, keeping the TTL
// running from the original write.
func (s *Store) UpdateExecution(ctx context.Context, e *domain.Execution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	if err := s.client.Set(ctx, executionKey(e.ID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return nil
}

// ListExecutions walks the recency index newest-first. Index entries whose
// record expired are pruned as they are encountered.
func (s *Store) ListExecutions(ctx context.Context, filter ports.ExecutionFilter) ([]*domain.Execution, error) {
	ids, err := s.client.ZRevRange(ctx, executionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read execution index: %w", err)
	}

	out := make([]*domain.Execution, 0)
	for _, id := range ids {
		e, err := s.GetExecution(ctx, id)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				s.client.ZRem(ctx, executionIndexKey, id)
				continue
			}
			return nil, err
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
