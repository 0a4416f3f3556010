// Package storage provides the persistence adapters for executions,
// templates and the audit trail.
//
// Implementations:
//   - redis: JSON records with sorted-set recency indexes, TTL on executions
//   - memory: in-memory maps with defensive copies, for tests and local use
package storage
