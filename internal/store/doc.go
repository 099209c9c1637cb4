// Package store provides persistent storage for the chat relay using SQLite.
//
// # Data Models
//
//   - Conversation: A chat session owned by one user, with status
//     (active, waiting, closed) and a queue position.
//   - Message: An immutable message within a conversation. Only the read
//     flag may change after creation.
//   - Agent: A responder registration, used for presence display only.
//
// # Ordering
//
// Messages are returned in ascending creation-timestamp order. Ties are
// broken by insertion order via a monotonic sequence column, so concurrent
// writers never reorder a conversation's history.
//
// # SQLite Configuration
//
// File-backed stores run in WAL mode with foreign keys enabled. Passing
// ":memory:" yields a non-durable store (the connection pool is pinned to a
// single connection so all callers share the same database). The reference
// deployment is in-memory; durability is a matter of configuring a path.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrEmptyContent: Message created with blank content
//
// All methods accept context.Context for cancellation support.
package store
