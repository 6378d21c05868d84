// ABOUTME: Guard enforces the mutual-exclusion invariant on user access flags
// ABOUTME: is_active and is_blocked can never be observed equal after a toggle

package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelworks/botdesk/internal/keylock"
	"github.com/kestrelworks/botdesk/internal/store"
)

// State is the internal tri-state access representation. The two legacy
// boolean fields exist only at the persistence boundary; modeling access as
// a single value makes an invalid flag combination unrepresentable here.
type State int

const (
	Active State = iota
	Blocked
)

// String returns the state name for logging.
func (s State) String() string {
	if s == Blocked {
		return "blocked"
	}
	return "active"
}

// FromFlags derives the state from a persisted record. The blocked flag is
// the ban source of truth: an inconsistent record resolves to whatever
// is_blocked says, not what is_active claims.
func FromFlags(isBlocked bool) State {
	if isBlocked {
		return Blocked
	}
	return Active
}

// Flags maps the state back onto the legacy boolean pair.
func (s State) Flags() (isActive, isBlocked bool) {
	return s == Active, s == Blocked
}

// Guard applies access-state toggles. Toggles for one user are serialized
// through a per-key lock, and both flags plus the timestamp are persisted as
// a single atomic write, so no reader can observe is_active == is_blocked.
type Guard struct {
	store  store.AccessStore
	locks  *keylock.Registry
	logger *slog.Logger
}

// NewGuard creates an access state guard backed by the given store.
func NewGuard(st store.AccessStore, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:  st,
		locks:  keylock.New(),
		logger: logger.With("component", "access"),
	}
}

// Toggle recomputes a user's access flags. The new is_active is the logical
// negation of the current is_blocked (the ban source of truth), and
// is_blocked is then derived from that new is_active. Keeping a single
// authoritative direction of computation means the two denormalized flags
// cannot drift apart, whatever state the record started in.
// Returns store.ErrNotFound if no record exists for the user.
func (g *Guard) Toggle(ctx context.Context, userID string) (*store.UserAccess, error) {
	g.locks.Lock(userID)
	defer g.locks.Unlock(userID)

	rec, err := g.store.GetUserAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := FromFlags(rec.IsBlocked)
	rec.IsActive, rec.IsBlocked = next.Flags()
	rec.UpdatedAt = time.Now()

	if err := g.store.SaveUserAccess(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting access toggle for user %s: %w", userID, err)
	}

	g.logger.Debug("access toggled", "user_id", userID, "state", next.String())
	return rec, nil
}

// Lookup returns the current state for a user, resolved from the blocked flag.
func (g *Guard) Lookup(ctx context.Context, userID string) (State, error) {
	rec, err := g.store.GetUserAccess(ctx, userID)
	if err != nil {
		return Active, err
	}
	return FromFlags(rec.IsBlocked), nil
}
