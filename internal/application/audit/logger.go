package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/domain"
	"github.com/canfieldjuan/finetunelab.ai-sub005/internal/ports"
)

// Config tunes the audit logger.
type Config struct {
	// BufferSize is the capacity of the async write buffer.
	BufferSize int
	// WriteTimeout bounds one store append.
	WriteTimeout time.Duration
}

// Logger is the append-only audit sink. Record is fire-and-forget: entries
// go into a buffered channel and a background goroutine persists them, so
// the orchestration path never blocks on audit durability and store
// failures never propagate back.
type Logger struct {
	store   ports.AuditStore
	metrics ports.MetricsCollector
	logger  *zap.Logger
	cfg     Config

	entries chan domain.AuditEntry
	done    chan struct{}

	// mu orders Record sends against the channel close in Close.
	mu     sync.RWMutex
	closed bool

	dropped   atomic.Int64
	closeOnce sync.Once
}

// NewLogger creates an audit logger and starts its writer goroutine.
func NewLogger(store ports.AuditStore, metrics ports.MetricsCollector, logger *zap.Logger, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	l := &Logger{
		store:   store,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		entries: make(chan domain.AuditEntry, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	go l.writeLoop()
	return l
}

// Record enqueues one entry. Missing id and timestamp are filled in here so
// callers only describe the event. When the buffer is full the entry is
// dropped and counted; the caller is never blocked or failed.
func (l *Logger) Record(entry domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = domain.AuditLevelInfo
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop(entry, "audit logger closed, dropping entry")
		return
	}

	select {
	case l.entries <- entry:
	default:
		l.drop(entry, "audit buffer full, dropping entry")
	}
}

func (l *Logger) drop(entry domain.AuditEntry, reason string) {
	l.metrics.RecordAuditDrop()
	if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
		l.logger.Warn(reason,
			zap.String("event_type", string(entry.EventType)),
			zap.Int64("dropped_total", n))
	}
}

// Dropped reports how many entries were discarded because the buffer was
// full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Query returns stored entries matching the filter, most recent first.
func (l *Logger) Query(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	entries, err := l.store.QueryAudit(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	return entries, nil
}

// Close stops accepting entries and drains the buffer, or gives up when the
// context expires. Entries recorded after Close are dropped.
func (l *Logger) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.entries)
		l.mu.Unlock()
		select {
		case <-l.done:
		case <-ctx.Done():
			err = fmt.Errorf("audit drain interrupted: %w", ctx.Err())
		}
	})
	return err
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for entry := range l.entries {
		l.persist(entry)
	}
}

func (l *Logger) persist(entry domain.AuditEntry) {
	// A panicking store must not take the writer goroutine down with it:
	// audit failures are only ever reported.
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("audit writer panic",
				zap.Any("panic", r),
				zap.String("event_type", string(entry.EventType)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
	defer cancel()

	if err := l.store.AppendAudit(ctx, &entry); err != nil {
		l.logger.Error("failed to persist audit entry",
			zap.String("event_type", string(entry.EventType)),
			zap.String("execution_id", entry.ExecutionID),
			zap.Error(err))
	}
}
