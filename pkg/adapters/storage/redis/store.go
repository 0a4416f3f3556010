package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key layout. Executions carry a TTL and a recency index; templates and the
// audit trail are kept until an external lifecycle process removes them.
const (
	executionKeyPrefix = "ftl:execution:"
	executionIndexKey  = "ftl:executions:index"

	templateKeyPrefix = "ftl:template:"
	templateIndexKey  = "ftl:templates:index"

	auditKeyPrefix     = "ftl:audit:entry:"
	auditIndexKey      = "ftl:audit:index"
	auditExecKeyPrefix = "ftl:audit:execution:"
)

// Store implements the execution, template and audit stores on Redis.
// Records are stored as JSON values with sorted-set indexes for
// most-recent-first listing.
type Store struct {
	client       *redis.Client
	logger       *zap.Logger
	executionTTL time.Duration
}

// NewStore creates a Redis-backed store. executionTTL bounds how long
// execution records are kept; zero keeps them forever.
func NewStore(client *redis.Client, executionTTL time.Duration, logger *zap.Logger) *Store {
	return &Store{
		client:       client,
		logger:       logger,
		executionTTL: executionTTL,
	}
}

func executionKey(id string) string { return executionKeyPrefix + id }
func templateKey(id string) string  { return templateKeyPrefix + id }
func auditKey(id string) string     { return auditKeyPrefix + id }
func auditExecKey(id string) string { return auditExecKeyPrefix + id }
