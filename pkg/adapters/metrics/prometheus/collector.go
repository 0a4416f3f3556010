// Package prometheus implements the orchestrator's metrics collector on the
// Prometheus client library. The collector takes an explicit Registerer so
// tests can use private registries.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector.
type Collector struct {
	executionsSubmitted *prometheus.CounterVec
	executionsFinished  *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec
	jobsExecuted        *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	activeExecutions    prometheus.Gauge
	runningJobs         prometheus.Gauge
	auditDrops          prometheus.Counter
}

// NewCollector creates a collector registered on the given registerer. Pass
// prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		executionsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftl_pipeline_executions_submitted_total",
				Help: "Total number of execution submissions by outcome",
			},
			[]string{"status"},
		),
		executionsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftl_pipeline_executions_finished_total",
				Help: "Total number of terminal executions by status",
			},
			[]string{"status"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftl_pipeline_execution_duration_seconds",
				Help:    "Execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"status"},
		),
		jobsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftl_pipeline_jobs_executed_total",
				Help: "Total number of terminal job runs by type and status",
			},
			[]string{"job_type", "status"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftl_pipeline_job_duration_seconds",
				Help:    "Job run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"job_type"},
		),
		activeExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ftl_pipeline_active_executions",
				Help: "Number of currently running executions",
			},
		),
		runningJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ftl_pipeline_running_jobs",
				Help: "Number of currently running jobs across all executions",
			},
		),
		auditDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ftl_pipeline_audit_drops_total",
				Help: "Total number of audit entries dropped because the buffer was full",
			},
		),
	}
}

// RecordExecutionSubmitted counts an execute request by outcome.
func (c *Collector) RecordExecutionSubmitted(status string) {
	c.executionsSubmitted.WithLabelValues(status).Inc()
}

// RecordExecutionFinished counts a terminal execution and observes its
// duration.
func (c *Collector) RecordExecutionFinished(status string, duration time.Duration) {
	c.executionsFinished.WithLabelValues(status).Inc()
	c.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordJobExecuted counts a terminal job run and observes its duration.
func (c *Collector) RecordJobExecuted(jobType, status string, duration time.Duration) {
	c.jobsExecuted.WithLabelValues(jobType, status).Inc()
	c.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// SetActiveExecutions sets the running-execution gauge.
func (c *Collector) SetActiveExecutions(n int) {
	c.activeExecutions.Set(float64(n))
}

// SetRunningJobs sets the running-job gauge.
func (c *Collector) SetRunningJobs(n int) {
	c.runningJobs.Set(float64(n))
}

// RecordAuditDrop counts one discarded audit entry.
func (c *Collector) RecordAuditDrop() {
	c.auditDrops.Inc()
}
