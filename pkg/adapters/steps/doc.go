// Package steps provides step executor implementations and the type
// registry the orchestrator resolves job types through.
//
// Builtin executors:
//   - noop: immediate success, for dry runs and tests
//   - webhook: POSTs the job payload to an allowlisted platform endpoint
//   - llm_eval: Anthropic-backed model-quality gate
//
// The external workload behind each step is opaque to the orchestrator; a
// returned value is the job result, a returned error the job failure.
package steps
