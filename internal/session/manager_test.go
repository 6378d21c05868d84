package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/botdesk/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.MockStore) {
	t.Helper()
	mock := store.NewMockStore()
	return NewManager(mock, nil), mock
}

func TestManager_Create_FallbackName(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Chat #1", conv.Meta.Name)
	assert.Empty(t, conv.Messages)

	id2, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)
	conv2, err := mgr.Get(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "Chat #2", conv2.Meta.Name)
}

func TestManager_Create_NameFromFirstMessage(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Create(ctx, "U1", "  how do   I export a report?  ")
	require.NoError(t, err)

	conv, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "how do I export a report?", conv.Meta.Name)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, store.RoleUser, conv.Messages[0].Role)
}

func TestManager_Create_LongFirstMessageTruncated(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	long := ""
	for i := 0; i < 20; i++ {
		long += "abcdefghij"
	}
	id, err := mgr.Create(ctx, "U1", long)
	require.NoError(t, err)

	conv, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, []rune(conv.Meta.Name), maxNameWidth)
}

func TestManager_Create_DuplicateNameSuffixed(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id1, err := mgr.Create(ctx, "U1", "status")
	require.NoError(t, err)
	id2, err := mgr.Create(ctx, "U1", "status")
	require.NoError(t, err)
	id3, err := mgr.Create(ctx, "U1", "status")
	require.NoError(t, err)

	c1, _ := mgr.Get(ctx, id1)
	c2, _ := mgr.Get(ctx, id2)
	c3, _ := mgr.Get(ctx, id3)
	assert.Equal(t, "status", c1.Meta.Name)
	assert.Equal(t, "status (2)", c2.Meta.Name)
	assert.Equal(t, "status (3)", c3.Meta.Name)
}

func TestManager_AppendMessage_OrderPreserved(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		err := mgr.AppendMessage(ctx, id, store.Message{
			Role: store.RoleUser,
			Text: fmt.Sprintf("msg-%d", i),
		})
		require.NoError(t, err)
	}

	conv, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 5)
	for i, msg := range conv.Messages {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Text)
	}
}

func TestManager_AppendMessage_UpdatesActivityNotName(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)

	before, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	created := before.Meta.LastActivity

	err = mgr.AppendMessage(ctx, id, store.Message{
		Role:      store.RoleUser,
		Text:      "hello",
		Timestamp: created.Add(time.Minute),
	})
	require.NoError(t, err)

	after, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Chat #1", after.Meta.Name, "name must not change once set")
	assert.True(t, after.Meta.LastActivity.After(created))
	assert.False(t, after.Meta.LastActivity.Before(after.Messages[0].Timestamp),
		"last-activity must cover the newest message timestamp")
}

func TestManager_AppendMessage_NotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	err := mgr.AppendMessage(ctx, "nonexistent", store.Message{Role: store.RoleUser, Text: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// failingSaveStore wraps the mock to fail saves after a threshold.
type failingSaveStore struct {
	*store.MockStore
	mu       sync.Mutex
	failNext bool
}

func (f *failingSaveStore) SaveConversation(ctx context.Context, conv *store.Conversation) error {
	f.mu.Lock()
	fail := f.failNext
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MockStore.SaveConversation(ctx, conv)
}

func TestManager_Create_RollbackOnSaveFailure(t *testing.T) {
	failing := &failingSaveStore{MockStore: store.NewMockStore()}
	mgr := NewManager(failing, nil)
	ctx := context.Background()

	failing.mu.Lock()
	failing.failNext = true
	failing.mu.Unlock()

	_, err := mgr.Create(ctx, "U1", "")
	require.Error(t, err)

	failing.mu.Lock()
	failing.failNext = false
	failing.mu.Unlock()

	// The failed create releases its counter value, so numbering
	// starts from one
	id, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)

	conv, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Chat #1", conv.Meta.Name)
}

func TestManager_AppendMessage_RollbackOnSaveFailure(t *testing.T) {
	failing := &failingSaveStore{MockStore: store.NewMockStore()}
	mgr := NewManager(failing, nil)
	ctx := context.Background()

	id, err := mgr.Create(ctx, "U1", "hi")
	require.NoError(t, err)

	failing.mu.Lock()
	failing.failNext = true
	failing.mu.Unlock()

	err = mgr.AppendMessage(ctx, id, store.Message{Role: store.RoleUser, Text: "lost?"})
	require.Error(t, err)

	failing.mu.Lock()
	failing.failNext = false
	failing.mu.Unlock()

	conv, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1, "failed append must not remain in memory")
	assert.Equal(t, "hi", conv.Messages[0].Text)
}

func TestManager_Delete_Idempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, id))
	_, err = mgr.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Second delete succeeds silently
	assert.NoError(t, mgr.Delete(ctx, id))
}

func TestManager_Get_CacheMissFallsThroughToStore(t *testing.T) {
	mock := store.NewMockStore()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, mock.SaveConversation(ctx, &store.Conversation{
		Meta: store.ConversationMeta{
			ID: "warm", OwnerID: "U1", Name: "Chat #1",
			CreatedAt: now, LastActivity: now,
		},
	}))

	// Fresh manager has an empty cache
	mgr := NewManager(mock, nil)
	conv, err := mgr.Get(ctx, "warm")
	require.NoError(t, err)
	assert.Equal(t, "Chat #1", conv.Meta.Name)
}

func TestManager_ListForOwner_Order(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)
	second, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)
	_, err = mgr.Create(ctx, "U2", "")
	require.NoError(t, err)

	// Touch the first session so it becomes the most recent
	err = mgr.AppendMessage(ctx, first, store.Message{
		Role: store.RoleUser, Text: "bump",
		Timestamp: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	metas, err := mgr.ListForOwner(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, first, metas[0].ID)
	assert.Equal(t, second, metas[1].ID)
}

func TestManager_ConcurrentAppends_AllRecorded(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	id, err := mgr.Create(ctx, "U1", "")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := mgr.AppendMessage(ctx, id, store.Message{
				Role: store.RoleUser, Text: fmt.Sprintf("m%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	conv, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, n)
}
