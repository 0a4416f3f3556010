package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
)

// AppendAudit stores one audit entry, indexed globally and per execution by
// timestamp. Entries are never updated or deleted here; retention is an
// external data-lifecycle concern.
func (s *Store) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	score := float64(e.Timestamp.UnixNano())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, auditKey(e.ID), data, 0)
	pipe.ZAdd(ctx, auditIndexKey, redis.Z{Score: score, Member: e.ID})
	if e.ExecutionID != "" {
		pipe.ZAdd(ctx, auditExecKey(e.ExecutionID), redis.Z{Score: score, Member: e.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns entries most-recent-first. The time range is pushed
// into the sorted-set scan; the remaining filter fields are applied as
// entries are loaded.
func (s *Store) QueryAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	index := auditIndexKey
	if filter.ExecutionID != "" {
		index = auditExecKey(filter.ExecutionID)
	}

	min, max := "-inf", "+inf"
	if !filter.Since.IsZero() {
		min = strconv.FormatInt(filter.Since.UnixNano(), 10)
	}
	if !filter.Until.IsZero() {
		max = strconv.FormatInt(filter.Until.UnixNano(), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, index, &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit index: %w", err)
	}

	out := make([]*domain.AuditEntry, 0)
	for _, id := range ids {
		data, err := s.client.Get(ctx, auditKey(id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to get audit entry: %w", err)
		}
		var e domain.AuditEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry: %w", err)
		}
		if !filter.Matches(&e) {
			continue
		}
		out = append(out, &e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
