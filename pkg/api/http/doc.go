// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Pipeline validation and execution
//   - Execution status, listing, cancellation and audit queries
//   - Template management
//   - Health checks
//   - Prometheus metrics
package http
