package orchestrator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor periodically snapshots the supervisor's live gauges and logs
// them, warning when the running-job count reaches the configured ceiling.
type Monitor struct {
	sup      *Supervisor
	interval time.Duration
	warnAt   int
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewMonitor creates an execution monitor. warnAt is the running-job count
// at which warnings start; zero disables the warning.
func NewMonitor(sup *Supervisor, interval time.Duration, warnAt int, logger *zap.Logger) *Monitor {
	return &Monitor{
		sup:      sup,
		interval: interval,
		warnAt:   warnAt,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the monitoring loop. A zero interval disables the monitor.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.interval <= 0 {
		return
	}
	m.running = true
	go m.run()
}

// Stop halts the monitoring loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.snapshot()
		}
	}
}

func (m *Monitor) snapshot() {
	active, running := m.sup.Stats()

	m.logger.Info("orchestrator snapshot",
		zap.Int("active_executions", active),
		zap.Int("running_jobs", running))

	if m.warnAt > 0 && running >= m.warnAt {
		m.logger.Warn("running job count at ceiling - consider scaling out",
			zap.Int("running_jobs", running),
			zap.Int("ceiling", m.warnAt))
	}
}
