package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsphere-client/internal/models"
)

func ref(kind models.ChatType, id string) models.ChatRef {
	return models.NewChatRef(kind, id)
}

func TestUnreadNeverGoesNegative(t *testing.T) {
	s := NewStore(nil)
	s.Apply(SetConversations{Conversations: []models.Conversation{
		{ChatType: models.ChatTypeRoom, ChatID: "general", UnreadCount: 1},
	}})

	s.Apply(SetConversationUnread{Ref: ref(models.ChatTypeRoom, "general"), Count: -3})

	snap := s.Snapshot()
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, 0, snap.Conversations[0].UnreadCount)
}

func TestBumpConversationIncrementsAndPreviews(t *testing.T) {
	s := NewStore(nil)
	s.Apply(SetConversations{Conversations: []models.Conversation{
		{ChatType: models.ChatTypeRoom, ChatID: "general", Name: "General"},
	}})

	preview := models.LastMessage{Content: "hi", FromUserID: "u-2", CreatedAt: models.Now()}
	s.Apply(BumpConversation{Ref: ref(models.ChatTypeRoom, "general"), Preview: preview, IncrementUnread: true})
	s.Apply(BumpConversation{Ref: ref(models.ChatTypeRoom, "general"), Preview: preview, IncrementUnread: true})

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Conversations[0].UnreadCount)
	require.NotNil(t, snap.Conversations[0].LastMessage)
	assert.Equal(t, "hi", snap.Conversations[0].LastMessage.Content)
}

func TestBumpConversationCreatesPlaceholderForUnknownChat(t *testing.T) {
	s := NewStore(nil)

	s.Apply(BumpConversation{
		Ref:             ref(models.ChatTypePrivate, "u-9"),
		Preview:         models.LastMessage{Content: "psst", FromUserID: "u-9"},
		IncrementUnread: true,
	})

	snap := s.Snapshot()
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "u-9", snap.Conversations[0].ChatID)
	assert.Equal(t, 1, snap.Conversations[0].UnreadCount)
}

func TestTypingSetSemantics(t *testing.T) {
	s := NewStore(nil)
	indicator := models.TypingIndicator{UserID: "u-2", ChatID: "general"}

	// Re-adding is a no-op, removal is idempotent.
	s.Apply(SetTyping{Indicator: indicator, Active: true})
	s.Apply(SetTyping{Indicator: indicator, Active: true})
	assert.Len(t, s.Snapshot().TypingUsers, 1)

	s.Apply(SetTyping{Indicator: indicator, Active: false})
	s.Apply(SetTyping{Indicator: indicator, Active: false})
	assert.Empty(t, s.Snapshot().TypingUsers)
}

func TestOnlineUsersSnapshotReplaces(t *testing.T) {
	s := NewStore(nil)
	s.Apply(SetOnlineUsers{Users: []models.User{{ID: "u-1"}, {ID: "u-2"}}})
	s.Apply(SetOnlineUsers{Users: []models.User{{ID: "u-3"}}})

	snap := s.Snapshot()
	require.Len(t, snap.OnlineUsers, 1)
	assert.Equal(t, "u-3", snap.OnlineUsers[0].ID)
}

func TestReplaceMessageKeepsPosition(t *testing.T) {
	s := NewStore(nil)
	s.Apply(AddMessage{Message: models.Message{ID: "m-1", Content: "first"}})
	s.Apply(AddMessage{Message: models.Message{ID: models.TempIDPrefix + "x", Content: "second"}})
	s.Apply(AddMessage{Message: models.Message{ID: "m-3", Content: "third"}})

	s.Apply(ReplaceMessage{TempID: models.TempIDPrefix + "x", Message: models.Message{ID: "m-2", Content: "second"}})

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "m-2", msgs[1].ID)
}

func TestReplaceMessageAppendsWhenTempAlreadyGone(t *testing.T) {
	s := NewStore(nil)
	s.Apply(ReplaceMessage{TempID: models.TempIDPrefix + "gone", Message: models.Message{ID: "m-1"}})
	assert.Len(t, s.Messages(), 1)
}

func TestRoomEventRingIsBounded(t *testing.T) {
	s := NewStore(nil)
	for i := 0; i < roomEventCap+10; i++ {
		s.Apply(AddRoomEvent{Event: RoomEvent{UserID: "u", RoomID: "general", Joined: true}})
	}
	assert.Len(t, s.Snapshot().RoomEvents, roomEventCap)
}

func TestErrorFieldLifecycle(t *testing.T) {
	s := NewStore(nil)
	s.Apply(SetError{Message: "boom"})
	assert.Equal(t, "boom", s.Snapshot().Err)
	s.Apply(ClearError{})
	assert.Empty(t, s.Snapshot().Err)
}

func TestUpdatesCoalesce(t *testing.T) {
	s := NewStore(nil)
	s.Apply(SetConnected{Connected: true})
	s.Apply(SetLoading{Loading: true})

	// At least one tick pending, consumable without blocking.
	select {
	case <-s.Updates():
	default:
		t.Fatal("expected a pending update notification")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(nil)
	s.Apply(AddMessage{Message: models.Message{ID: "m-1", Content: "hi"}})

	snap := s.Snapshot()
	snap.Messages[0].Content = "mutated"

	assert.Equal(t, "hi", s.Messages()[0].Content)
}
