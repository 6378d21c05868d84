package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func testConversation(id, owner string) *Conversation {
	now := time.Now().UTC().Truncate(time.Second)
	return &Conversation{
		Meta: ConversationMeta{
			ID:           id,
			OwnerID:      owner,
			Name:         "Chat #1",
			CreatedAt:    now,
			LastActivity: now,
		},
	}
}

func TestStore_SaveConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-123", "owner-1")
	conv.Messages = []Message{
		{Role: RoleUser, Text: "hello", Timestamp: conv.Meta.LastActivity},
	}

	err := store.SaveConversation(ctx, conv)
	require.NoError(t, err)

	retrieved, err := store.GetConversation(ctx, "conv-123")
	require.NoError(t, err)
	assert.Equal(t, "conv-123", retrieved.Meta.ID)
	assert.Equal(t, "owner-1", retrieved.Meta.OwnerID)
	require.Len(t, retrieved.Messages, 1)
	assert.Equal(t, "hello", retrieved.Messages[0].Text)
}

func TestStore_SaveConversation_Upsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-123", "owner-1")
	require.NoError(t, store.SaveConversation(ctx, conv))

	conv.Messages = append(conv.Messages,
		Message{Role: RoleUser, Text: "first", Timestamp: time.Now().UTC()},
		Message{Role: RoleAssistant, Text: "second", Timestamp: time.Now().UTC()},
	)
	require.NoError(t, store.SaveConversation(ctx, conv))

	retrieved, err := store.GetConversation(ctx, "conv-123")
	require.NoError(t, err)
	require.Len(t, retrieved.Messages, 2)
	assert.Equal(t, "first", retrieved.Messages[0].Text)
	assert.Equal(t, "second", retrieved.Messages[1].Text)
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetConversation(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteConversation_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := testConversation("conv-123", "owner-1")
	require.NoError(t, store.SaveConversation(ctx, conv))

	require.NoError(t, store.DeleteConversation(ctx, "conv-123"))
	_, err := store.GetConversation(ctx, "conv-123")
	assert.ErrorIs(t, err, ErrNotFound)

	// Second delete succeeds silently
	assert.NoError(t, store.DeleteConversation(ctx, "conv-123"))
}

func TestStore_ListConversations_Order(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		conv := testConversation(fmt.Sprintf("conv-%d", i), "owner-1")
		conv.Meta.LastActivity = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveConversation(ctx, conv))
	}
	// Different owner should not appear
	other := testConversation("conv-other", "owner-2")
	require.NoError(t, store.SaveConversation(ctx, other))

	metas, err := store.ListConversations(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, "conv-2", metas[0].ID)
	assert.Equal(t, "conv-1", metas[1].ID)
	assert.Equal(t, "conv-0", metas[2].ID)
}

func TestStore_ReportLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	report := &Report{
		ID:        "report-1",
		OwnerID:   "owner-1",
		Name:      "Q3 summary",
		State:     ReportActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateReport(ctx, report, []byte("payload-bytes")))

	retrieved, err := store.GetReport(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, ReportActive, retrieved.State)

	payload, err := store.LoadPayload(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload-bytes"), payload)

	require.NoError(t, store.RenameReport(ctx, "report-1", "Q3 final"))
	retrieved, err = store.GetReport(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, "Q3 final", retrieved.Name)

	require.NoError(t, store.SetReportState(ctx, "report-1", ReportPendingDelete))
	retrieved, err = store.GetReport(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, ReportPendingDelete, retrieved.State)

	require.NoError(t, store.DeleteReport(ctx, "report-1"))
	_, err = store.GetReport(ctx, "report-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Delete of an absent report succeeds silently
	assert.NoError(t, store.DeleteReport(ctx, "report-1"))
}

func TestStore_RenameReport_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.RenameReport(ctx, "nonexistent", "new name")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UserAccess_Roundtrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetUserAccess(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	access := &UserAccess{
		UserID:    "user-1",
		IsActive:  true,
		IsBlocked: false,
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveUserAccess(ctx, access))

	retrieved, err := store.GetUserAccess(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, retrieved.IsActive)
	assert.False(t, retrieved.IsBlocked)

	// Upsert flips both flags in one write
	access.IsActive = false
	access.IsBlocked = true
	require.NoError(t, store.SaveUserAccess(ctx, access))

	retrieved, err = store.GetUserAccess(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, retrieved.IsActive)
	assert.True(t, retrieved.IsBlocked)
}
