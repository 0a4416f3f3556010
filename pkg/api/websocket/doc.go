// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/executions/:id/ws to receive live
// execution and job lifecycle events while polling /status remains the
// plain request/response contract.
package websocket
