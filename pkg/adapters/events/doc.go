// Package events provides the event bus implementations carrying pipeline
// lifecycle notifications from the supervisor to subscribers (WebSocket
// streams, external platform consumers).
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - memory: in-process fan-out, for tests and single-node deployments
package events
