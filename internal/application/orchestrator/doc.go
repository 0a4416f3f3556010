// Package orchestrator implements the core pipeline execution logic.
//
// The supervisor coordinates pipeline executions by:
//   - Validating the dependency graph and deriving execution levels
//   - Running each level as a barrier, jobs within a level in parallel
//   - Skipping jobs whose dependencies failed, without invoking their step
//   - Publishing lifecycle events and audit entries for every transition
//   - Persisting execution state through the execution store
//
// Each execution is driven by a single run goroutine that owns all state
// transitions; job attempts execute on worker goroutines and report their
// outcomes over a channel.
package orchestrator
