package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// Bus implements the event bus with in-process handler fan-out. Intended
// for tests and single-node deployments.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      int
	closed      bool
}

type subscription struct {
	id      int
	handler ports.EventHandler
}

// NewBus creates an in-memory event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]subscription),
	}
}

// ErrClosed is returned by Subscribe after the bus has been closed.
var ErrClosed = errors.New("event bus closed")

// Publish delivers the event to every subscriber of the topic. Handlers run
// synchronously in subscription order; a handler error stops neither the
// others nor the publisher. Publishing on a closed bus is a no-op, so late
// events from draining runs are harmless during shutdown.
func (b *Bus) Publish(ctx context.Context, topic string, event domain.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	handlers := make([]subscription, len(b.subscribers[topic]))
	copy(handlers, b.subscribers[topic])
	b.mu.RUnlock()

	for _, sub := range handlers {
		// Handler errors are the subscriber's concern.
		_ = sub.handler(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for a topic until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(topic, sub.id)
	}()
	return nil
}

// Close drops every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]subscription)
	b.closed = true
	return nil
}

func (b *Bus) unsubscribe(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
