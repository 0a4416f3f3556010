package domain

import "time"

// EventType names one lifecycle transition. The same constants are used for
// event bus messages and audit entries.
type EventType string

const (
	EventExecutionStart    EventType = "execution.start"
	EventExecutionComplete EventType = "execution.complete"
	EventExecutionFail     EventType = "execution.fail"
	EventExecutionCancel   EventType = "execution.cancel"
	EventExecutionTimeout  EventType = "execution.timeout"

	EventJobStart    EventType = "job.start"
	EventJobComplete EventType = "job.complete"
	EventJobFail     EventType = "job.fail"
	EventJobSkip     EventType = "job.skip"
	EventJobTimeout  EventType = "job.timeout"
	EventJobRetry    EventType = "job.retry"

	EventValidationError EventType = "validation.error"
	EventValidationCycle EventType = "validation.cycle_detected"

	EventSecurityViolation EventType = "security.violation"
)

// Event is one lifecycle notification published on the event bus.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	ExecutionID string         `json:"executionId,omitempty"`
	JobID       string         `json:"jobId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}
