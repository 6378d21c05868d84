// ABOUTME: Tracker remembers which outbound UI messages belong to a flow
// ABOUTME: Lets the handler layer supersede or remove stale rendered state

package flowtrack

import "sync"

// MessageRef identifies one rendered UI message within a flow.
type MessageRef struct {
	ChatID    string
	MessageID string
}

// Tracker maps flow ids to the UI messages rendered for them, so a flow step
// can clean up or update its predecessors without leaking references.
type Tracker struct {
	mu    sync.Mutex
	flows map[string][]MessageRef
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		flows: make(map[string][]MessageRef),
	}
}

// Register records a rendered message under a flow id.
func (t *Tracker) Register(flowID string, ref MessageRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows[flowID] = append(t.flows[flowID], ref)
}

// PopAll removes and returns every message registered for a flow, in
// registration order. An unknown flow id yields nil.
func (t *Tracker) PopAll(flowID string) []MessageRef {
	t.mu.Lock()
	defer t.mu.Unlock()

	refs := t.flows[flowID]
	delete(t.flows, flowID)
	return refs
}

// Clear drops all messages for a flow. Clearing an unknown or already
// cleared flow is a no-op.
func (t *Tracker) Clear(flowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flows, flowID)
}
