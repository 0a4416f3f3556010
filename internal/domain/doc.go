// Package domain defines the entities of the pipeline orchestrator:
// pipeline specs (job DAGs), executions and their per-job runs, templates,
// audit entries, and the lifecycle event vocabulary shared by the event bus
// and the audit trail.
//
// Types here carry no behavior beyond construction, deep copies, and derived
// values; all lifecycle mutation happens in the application layer.
package domain
