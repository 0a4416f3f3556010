// Package audit implements the append-only audit trail of the orchestrator.
//
// Every component reports lifecycle events here (execution start/finish,
// job transitions, validation failures, security violations). Writes are
// asynchronous and fire-and-forget: orchestration correctness never depends
// on audit durability. Entries are queryable by execution, event type,
// severity and time range.
package audit
