// Package gateway wires the chat-relay components together and serves the
// HTTP surface.
//
// A Gateway owns the SQLite store, the fallback responder, the
// response-service client, the reply pipeline, and the WebSocket relay.
// One HTTP server fronts everything:
//
//   - /api/conversations and /api/messages for the REST API
//   - /api/agents and /api/status for presence and upstream connectivity
//   - /api/terminal/validate and /api/terminal/cache for terminal metadata
//   - /ws for the WebSocket relay
//   - /health and /health/ready for probes
//   - /debug/conversations/{id} for an HTML transcript view
//
// Run blocks until the context is canceled and then shuts everything down
// gracefully.
package gateway
