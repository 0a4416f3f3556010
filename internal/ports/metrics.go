package ports

import "time"

// MetricsCollector records orchestration metrics. Implementations must be
// safe for concurrent use and must never block the caller.
type MetricsCollector interface {
	// RecordExecutionSubmitted counts an execute request by outcome
	// ("accepted" or "rejected").
	RecordExecutionSubmitted(status string)
	// RecordExecutionFinished counts a terminal execution by status and
	// observes its duration.
	RecordExecutionFinished(status string, duration time.Duration)
	// RecordJobExecuted counts a terminal job run by type and status and
	// observes its duration.
	RecordJobExecuted(jobType, status string, duration time.Duration)
	SetActiveExecutions(n int)
	SetRunningJobs(n int)
	// RecordAuditDrop counts an audit entry discarded because the logger
	// buffer was full.
	RecordAuditDrop()
}

// NopMetrics is a MetricsCollector that discards everything. Useful in
// tests and as a default when metrics are disabled.
type NopMetrics struct{}

func (NopMetrics) RecordExecutionSubmitted(string)                 {}
func (NopMetrics) RecordExecutionFinished(string, time.Duration)   {}
func (NopMetrics) RecordJobExecuted(string, string, time.Duration) {}
func (NopMetrics) SetActiveExecutions(int)                         {}
func (NopMetrics) SetRunningJobs(int)                              {}
func (NopMetrics) RecordAuditDrop()                                {}
