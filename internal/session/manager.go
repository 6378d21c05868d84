// ABOUTME: Manager is the in-memory authority for active conversations
// ABOUTME: Mediates all reads/writes, owns session-id allocation and naming

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/botdesk/internal/keylock"
	"github.com/kestrelworks/botdesk/internal/store"
)

// maxNameWidth bounds generated display names so menu rows stay readable.
const maxNameWidth = 48

// Manager owns the in-memory conversation cache and serializes mutating
// access per session id. All durable writes complete before the mutating
// call returns, so an acknowledged message cannot be lost by a crash.
type Manager struct {
	store  store.ConversationStore
	locks  *keylock.Registry
	logger *slog.Logger

	mu       sync.RWMutex
	cache    map[string]*store.Conversation
	counters map[string]int            // per-owner creation counter for fallback names
	names    map[string]map[string]int // owner -> generated name -> use count
}

// NewManager creates a conversation manager backed by the given store.
func NewManager(st store.ConversationStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    st,
		locks:    keylock.New(),
		logger:   logger.With("component", "session"),
		cache:    make(map[string]*store.Conversation),
		counters: make(map[string]int),
		names:    make(map[string]map[string]int),
	}
}

// Create allocates a new conversation for the owner and returns its session id.
// The display name derives from the first non-empty message text; with no
// first message a per-owner counter name ("Chat #N") is used. A non-empty
// firstText is also recorded as the opening user message. The conversation is
// persisted before the id is returned.
func (m *Manager) Create(ctx context.Context, ownerID, firstText string) (string, error) {
	now := time.Now()
	id := uuid.New().String()

	m.mu.Lock()
	m.counters[ownerID]++
	name, base := m.assignNameLocked(ownerID, firstText)
	m.mu.Unlock()

	conv := &store.Conversation{
		Meta: store.ConversationMeta{
			ID:           id,
			OwnerID:      ownerID,
			Name:         name,
			CreatedAt:    now,
			LastActivity: now,
		},
	}
	if firstText != "" {
		conv.Messages = append(conv.Messages, store.Message{
			Role:      store.RoleUser,
			Text:      firstText,
			Timestamp: now,
		})
	}

	if err := m.store.SaveConversation(ctx, conv); err != nil {
		m.mu.Lock()
		m.counters[ownerID]--
		m.releaseNameLocked(ownerID, base)
		m.mu.Unlock()
		return "", fmt.Errorf("persisting new conversation %s: %w", id, err)
	}

	m.mu.Lock()
	m.cache[id] = conv
	m.mu.Unlock()

	m.logger.Debug("conversation created", "session_id", id, "owner", ownerID, "name", name)
	return id, nil
}

// AppendMessage appends one message to a conversation and bumps its
// last-activity timestamp. Returns store.ErrNotFound if the session is
// absent. The durable write completes before the call returns; on write
// failure the in-memory append is rolled back.
func (m *Manager) AppendMessage(ctx context.Context, sessionID string, msg store.Message) error {
	m.locks.Lock(sessionID)
	defer m.locks.Unlock(sessionID)

	conv, err := m.lookup(ctx, sessionID)
	if err != nil {
		return err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	m.mu.Lock()
	prevActivity := conv.Meta.LastActivity
	conv.Messages = append(conv.Messages, msg)
	if msg.Timestamp.After(conv.Meta.LastActivity) {
		conv.Meta.LastActivity = msg.Timestamp
	}
	snapshot := cloneConversation(conv)
	m.mu.Unlock()

	if err := m.store.SaveConversation(ctx, snapshot); err != nil {
		// Roll back the optimistic append so cache and store stay aligned
		m.mu.Lock()
		conv.Messages = conv.Messages[:len(conv.Messages)-1]
		conv.Meta.LastActivity = prevActivity
		m.mu.Unlock()
		return fmt.Errorf("persisting message for session %s: %w", sessionID, err)
	}

	m.logger.Debug("message appended", "session_id", sessionID, "role", msg.Role)
	return nil
}

// Get returns a read-only snapshot of the conversation for a session id,
// loading it from the durable store on cache miss. Returns store.ErrNotFound
// if absent. No side effect on cache contents beyond filling the miss.
func (m *Manager) Get(ctx context.Context, sessionID string) (*store.Conversation, error) {
	m.mu.RLock()
	if conv, ok := m.cache[sessionID]; ok {
		snapshot := cloneConversation(conv)
		m.mu.RUnlock()
		return snapshot, nil
	}
	m.mu.RUnlock()

	conv, err := m.store.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[sessionID] = conv
	snapshot := cloneConversation(conv)
	m.mu.Unlock()
	return snapshot, nil
}

// Delete removes a conversation from the durable store and the cache.
// The durable delete completes before the cache entry is dropped.
// Deleting an absent session succeeds silently.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.locks.Lock(sessionID)
	defer m.locks.Unlock(sessionID)

	if err := m.store.DeleteConversation(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", sessionID, err)
	}

	m.mu.Lock()
	delete(m.cache, sessionID)
	m.mu.Unlock()

	m.logger.Debug("conversation deleted", "session_id", sessionID)
	return nil
}

// ListForOwner returns conversation metadata for an owner ordered by
// last-activity descending. Message bodies are not loaded.
func (m *Manager) ListForOwner(ctx context.Context, ownerID string) ([]store.ConversationMeta, error) {
	return m.store.ListConversations(ctx, ownerID)
}

// lookup resolves a session from cache or store. Caller holds the session lock.
func (m *Manager) lookup(ctx context.Context, sessionID string) (*store.Conversation, error) {
	m.mu.RLock()
	conv, ok := m.cache[sessionID]
	m.mu.RUnlock()
	if ok {
		return conv, nil
	}

	conv, err := m.store.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[sessionID] = conv
	m.mu.Unlock()
	return conv, nil
}

// assignNameLocked derives a display name and records its use. A non-empty
// first message wins; otherwise the per-owner counter produces "Chat #N".
// Duplicate derived names get a creation-order suffix so owner navigation
// stays unambiguous. Must be called with mu held.
func (m *Manager) assignNameLocked(ownerID, firstText string) (display, base string) {
	base = deriveName(firstText)
	if base == "" {
		base = fmt.Sprintf("Chat #%d", m.counters[ownerID])
	}

	used := m.names[ownerID]
	if used == nil {
		used = make(map[string]int)
		m.names[ownerID] = used
	}

	used[base]++
	if used[base] > 1 {
		return fmt.Sprintf("%s (%d)", base, used[base]), base
	}
	return base, base
}

// releaseNameLocked undoes a name reservation after a failed create.
// Must be called with mu held.
func (m *Manager) releaseNameLocked(ownerID, name string) {
	if used := m.names[ownerID]; used != nil && used[name] > 0 {
		used[name]--
	}
}

// cloneConversation copies a conversation so callers never share the cached
// message slice with in-flight appends.
func cloneConversation(c *store.Conversation) *store.Conversation {
	out := &store.Conversation{Meta: c.Meta}
	out.Messages = append([]store.Message(nil), c.Messages...)
	return out
}

// deriveName normalizes the first message text into a bounded display name.
func deriveName(text string) string {
	name := strings.Join(strings.Fields(text), " ")
	if name == "" {
		return ""
	}
	runes := []rune(name)
	if len(runes) > maxNameWidth {
		name = string(runes[:maxNameWidth])
	}
	return name
}
