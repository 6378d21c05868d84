// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	reports       map[string]*Report       // keyed by report ID
	payloads      map[string][]byte        // keyed by report ID
	access        map[string]*UserAccess   // keyed by user ID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		reports:       make(map[string]*Report),
		payloads:      make(map[string][]byte),
		access:        make(map[string]*UserAccess),
	}
}

// SaveConversation stores a copy of the conversation.
func (m *MockStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Make a copy to avoid external modification
	c := Conversation{Meta: conv.Meta}
	c.Messages = append(c.Messages, conv.Messages...)
	m.conversations[c.Meta.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := Conversation{Meta: c.Meta}
	result.Messages = append(result.Messages, c.Messages...)
	return &result, nil
}

// DeleteConversation removes a conversation. Absent IDs are not an error.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversations, id)
	return nil
}

// ListConversations returns metadata for an owner, last-activity descending.
func (m *MockStore) ListConversations(ctx context.Context, ownerID string) ([]ConversationMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var metas []ConversationMeta
	for _, c := range m.conversations {
		if c.Meta.OwnerID == ownerID {
			metas = append(metas, c.Meta)
		}
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].LastActivity.After(metas[j].LastActivity)
	})
	return metas, nil
}

// CreateReport stores a report record and its payload.
func (m *MockStore) CreateReport(ctx context.Context, report *Report, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *report
	m.reports[r.ID] = &r
	m.payloads[r.ID] = append([]byte(nil), payload...)
	return nil
}

// GetReport retrieves a report record by ID.
func (m *MockStore) GetReport(ctx context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *r
	return &result, nil
}

// ListReports returns report records for an owner, newest first.
func (m *MockStore) ListReports(ctx context.Context, ownerID string) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reports []*Report
	for _, r := range m.reports {
		if r.OwnerID == ownerID {
			result := *r
			reports = append(reports, &result)
		}
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// LoadPayload returns the payload bytes for a report.
func (m *MockStore) LoadPayload(ctx context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payloads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), p...), nil
}

// RenameReport updates a report's display name.
func (m *MockStore) RenameReport(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return ErrNotFound
	}
	r.Name = name
	return nil
}

// SetReportState updates a report's lifecycle state.
func (m *MockStore) SetReportState(ctx context.Context, id, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return ErrNotFound
	}
	r.State = state
	return nil
}

// DeleteReport removes a report and its payload. Absent IDs are not an error.
func (m *MockStore) DeleteReport(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reports, id)
	delete(m.payloads, id)
	return nil
}

// GetUserAccess retrieves a user access record.
func (m *MockStore) GetUserAccess(ctx context.Context, userID string) (*UserAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.access[userID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *a
	return &result, nil
}

// SaveUserAccess upserts a user access record.
func (m *MockStore) SaveUserAccess(ctx context.Context, access *UserAccess) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := *access
	m.access[a.UserID] = &a
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
