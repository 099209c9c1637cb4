// Package agent is the client side of the external response-generation
// service.
//
// GenerateReply sends the user message together with recent conversation
// context and terminal metadata to the service and returns its reply. The
// call is made exactly once with a bounded timeout; when the service is
// unreachable, returns a non-2xx status, or answers with garbage, the
// client silently degrades to the deterministic keyword responder so the
// user always hears back.
//
// The package also resolves terminal metadata by access key through a
// read-through cache with a configurable TTL. The first message of a
// conversation forces a refresh so stale terminal data never seeds a new
// session.
package agent
