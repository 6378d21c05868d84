// Package session manages per-user conversations.
//
// # Manager
//
// The Manager is the in-memory authority for active conversations. It owns
// session-id allocation, deterministic display naming, and the write-through
// cache in front of the durable conversation store:
//
//	mgr := session.NewManager(store, logger)
//	id, err := mgr.Create(ctx, ownerID, firstText)
//
// Key operations:
//
//   - Create(ctx, owner, firstText): mint a session, derive its name
//   - AppendMessage(ctx, id, msg): append-only, durable before return
//   - Get(ctx, id): read a conversation, cache-filling on miss
//   - Delete(ctx, id): idempotent removal from store and cache
//   - ListForOwner(ctx, owner): metadata only, last-activity descending
//
// # Naming
//
// The display name comes from the first non-empty user message, truncated to
// a bounded width, or falls back to a per-owner counter name ("Chat #3").
// A duplicate derived name gains a creation-order suffix ("status (2)") so an
// owner's session list never shows two indistinguishable entries. Once set, a
// name only changes through an explicit rename.
//
// # Concurrency
//
// Mutations on one session are serialized through a per-key lock registry;
// sessions mutate independently of each other. Durable writes complete before
// a mutating call acknowledges, and a failed write rolls the in-memory state
// back, so cache and store never diverge.
package session
