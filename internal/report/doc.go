// Package report drives the "My Reports" interaction for generated artifacts.
//
// # State Machine
//
// Each (owner, report) pair walks a small finite state machine:
//
//	Idle -> Viewing -> RenameInput -> RenameConfirm -> Idle
//	                -> DeleteConfirm -> Idle
//
// RenameConfirm and DeleteConfirm can be cancelled back to Idle, and any
// confirm step left unattended past the configured window is swept back to
// its safe state by a background janitor.
//
// # Delete Ordering
//
// ConfirmDelete acknowledges the durable-store deletion before dropping the
// cached record and only then exposes the report as deleted. Reversing that
// order would let a concurrent view observe a report that looks active while
// its payload is already gone. A failed durable delete reverts the report to
// active; it is never left in pending-delete. Confirming a delete that
// already completed succeeds silently, so duplicated user input or retries
// never surface spurious errors.
//
// # Concurrency
//
// All transitions for one report are serialized through a per-key lock, so a
// cancel can never interleave with an in-flight confirmation. Payload
// decoding for views runs on an offloaded worker; the state machine proceeds
// only after the worker reports back, and the controller never retains the
// raw payload buffer beyond the returned snapshot.
package report
