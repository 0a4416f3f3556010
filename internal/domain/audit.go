package domain

import "time"

// AuditLevel is the severity of an audit entry.
type AuditLevel string

const (
	AuditLevelInfo     AuditLevel = "info"
	AuditLevelWarn     AuditLevel = "warn"
	AuditLevelError    AuditLevel = "error"
	AuditLevelCritical AuditLevel = "critical"
)

// AuditEntry is one append-only record of a lifecycle event. Entries are
// never updated or deleted by the orchestrator; retention is an external
// data-lifecycle concern.
type AuditEntry struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   EventType         `json:"eventType"`
	Level       AuditLevel        `json:"level"`
	ExecutionID string            `json:"executionId,omitempty"`
	JobID       string            `json:"jobId,omitempty"`
	UserID      string            `json:"userId,omitempty"`
	Details     map[string]any    `json:"details,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AuditFilter selects audit entries. Zero values mean "any".
type AuditFilter struct {
	ExecutionID string
	EventType   EventType
	Level       AuditLevel
	Since       time.Time
	Until       time.Time
	Limit       int
}

// Matches reports whether the entry satisfies every set filter field.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.ExecutionID != "" && e.ExecutionID != f.ExecutionID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
