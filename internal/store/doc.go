// Package store provides persistent storage for botdesk using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - ConversationStore: conversation metadata and message sequences
//   - ReportStore: report records, lifecycle state, and payload blobs
//   - AccessStore: per-user access records (is_active / is_blocked)
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. MockStore provides
// an in-memory implementation for tests.
//
// # Data Models
//
//   - Conversation: metadata plus an append-only, arrival-ordered message list
//   - Message: one turn (user or assistant) with text and timestamp
//   - Report: generated artifact record with lifecycle state
//     (active, pending_delete, deleted); payload stored as a BLOB and loaded
//     only on demand
//   - UserAccess: denormalized access flags written as one atomic update
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// ErrNotFound is returned when a requested entity does not exist. Deletes are
// idempotent: removing an absent conversation or report succeeds silently.
package store
