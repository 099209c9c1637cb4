// Package relay serves the WebSocket endpoint and fans conversation events
// out to connected clients.
//
// Every frame is a JSON envelope with a type, an opaque data payload, and
// an optional conversation id. Clients join one conversation at a time;
// messages sent over the socket are persisted first and then broadcast to
// every subscriber of that conversation. User messages additionally arm
// two timers, one showing the agent typing indicator and one generating
// and broadcasting the agent reply.
//
// Malformed frames are logged and skipped, never fatal to the connection.
// Typing frames pass through to other subscribers without being persisted
// or echoed back to the sender.
package relay
