// Package responder implements the local fallback reply generator.
//
// When the external response service is unreachable, the relay still has to
// answer users. The responder matches the lower-cased message against an
// ordered table of keyword rules and returns the first matching canned
// reply, falling back to a generic acknowledgement.
//
// The built-in table covers greetings, gratitude, problem reports, pricing,
// how-to questions, cancellation requests, and technical-support handoffs.
// Deployments can replace it with a TOML file via Load; arrays of tables
// keep the declaration order, so the file is evaluated exactly as written.
package responder
