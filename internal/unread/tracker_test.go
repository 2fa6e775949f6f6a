package unread

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsphere-client/internal/models"
	"chatsphere-client/internal/state"
)

type fakeAPI struct {
	mu            sync.Mutex
	conversations []models.Conversation
	listErr       error
	markErr       error
	markCalls     []models.ChatRef
}

func (f *fakeAPI) GetConversations(context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conversations, f.listErr
}

func (f *fakeAPI) MarkConversationAsRead(_ context.Context, chatType models.ChatType, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, models.NewChatRef(chatType, chatID))
	return f.markErr
}

func (f *fakeAPI) marked() []models.ChatRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatRef(nil), f.markCalls...)
}

func setup(t *testing.T) (*Tracker, *state.Store, *fakeAPI) {
	t.Helper()
	store := state.NewStore(nil)
	api := &fakeAPI{}
	return NewTracker(store, api, nil), store, api
}

func generalConv() models.Conversation {
	return models.Conversation{ChatType: models.ChatTypeRoom, ChatID: "general", Name: "General"}
}

func roomMsg(from, room, content string) models.Message {
	return models.Message{
		ID: "m-1", FromUserID: from, Content: content,
		ChatType: models.ChatTypeRoom, RoomID: room, CreatedAt: models.Now(),
	}
}

func TestUnroutedMessageIncrementsUnread(t *testing.T) {
	tracker, store, api := setup(t)
	store.Apply(state.SetConversations{Conversations: []models.Conversation{generalConv()}})

	tracker.HandleInbound(context.Background(), roomMsg("u-2", "general", "hi"), "u-1", false)

	snap := store.Snapshot()
	assert.Equal(t, 1, snap.Conversations[0].UnreadCount)
	require.NotNil(t, snap.Conversations[0].LastMessage)
	assert.Equal(t, "hi", snap.Conversations[0].LastMessage.Content)
	assert.Empty(t, api.marked())
}

func TestRoutedMessageMarksReadInsteadOfCounting(t *testing.T) {
	tracker, store, api := setup(t)
	store.Apply(state.SetConversations{Conversations: []models.Conversation{generalConv()}})

	// The chat is open on screen: never accrue unread for it.
	tracker.HandleInbound(context.Background(), roomMsg("u-2", "general", "hi"), "u-1", true)

	snap := store.Snapshot()
	assert.Equal(t, 0, snap.Conversations[0].UnreadCount)
	require.Len(t, api.marked(), 1)
	assert.Equal(t, models.NewChatRef(models.ChatTypeRoom, "general"), api.marked()[0])
}

func TestOwnEchoNeverCounts(t *testing.T) {
	tracker, store, api := setup(t)
	store.Apply(state.SetConversations{Conversations: []models.Conversation{generalConv()}})

	tracker.HandleInbound(context.Background(), roomMsg("u-1", "general", "mine"), "u-1", false)

	assert.Equal(t, 0, store.Snapshot().Conversations[0].UnreadCount)
	assert.Empty(t, api.marked())
}

func TestMarkReadIsIdempotentLocallyButAlwaysCallsOut(t *testing.T) {
	tracker, store, api := setup(t)
	store.Apply(state.SetConversations{Conversations: []models.Conversation{generalConv()}})
	ref := models.NewChatRef(models.ChatTypeRoom, "general")

	tracker.MarkConversationAsRead(context.Background(), ref)
	tracker.MarkConversationAsRead(context.Background(), ref)

	assert.Equal(t, 0, store.Snapshot().Conversations[0].UnreadCount)
	assert.Len(t, api.marked(), 2)
}

func TestMarkReadFailureKeepsOptimisticZero(t *testing.T) {
	tracker, store, api := setup(t)
	conv := generalConv()
	conv.UnreadCount = 3
	store.Apply(state.SetConversations{Conversations: []models.Conversation{conv}})
	api.markErr = errors.New("network down")

	tracker.MarkConversationAsRead(context.Background(), conv.Ref())

	// Accepted eventual-consistency trade-off: no rollback.
	assert.Equal(t, 0, store.Snapshot().Conversations[0].UnreadCount)
}

func TestRefreshReplacesConversations(t *testing.T) {
	tracker, store, api := setup(t)
	api.conversations = []models.Conversation{
		{ChatType: models.ChatTypePrivate, ChatID: "u-2", Name: "Bob", UnreadCount: 4},
	}

	tracker.Refresh(context.Background())

	snap := store.Snapshot()
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "Bob", snap.Conversations[0].Name)
}

func TestRefreshFailureSurfacesNonFatalError(t *testing.T) {
	tracker, store, api := setup(t)
	store.Apply(state.SetConversations{Conversations: []models.Conversation{generalConv()}})
	api.listErr = errors.New("boom")

	tracker.Refresh(context.Background())

	snap := store.Snapshot()
	assert.NotEmpty(t, snap.Err)
	// Existing list is untouched on failure.
	assert.Len(t, snap.Conversations, 1)
}
