package ports

import (
	"context"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
)

// Event bus topics.
const (
	TopicExecutionEvents = "execution.events"
	TopicJobEvents       = "job.events"
)

// EventHandler processes one event. Handlers must be safe for concurrent
// invocation.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus transports lifecycle events between the supervisor and
// subscribers (WebSocket streams, external consumers). Publishing is
// fire-and-forget relative to orchestration: a bus failure is reported,
// never propagated into execution state.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	// Subscribe registers a handler for a topic until ctx is done.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}
