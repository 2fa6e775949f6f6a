package state

import "chatsphere-client/internal/models"

// Action is one atomic mutation of the session state. Actions are applied by
// a single writer (the session event loop); everything else only reads
// snapshots.
type Action interface {
	name() string
}

type SetCurrentUser struct{ User models.User }

type SetConversations struct{ Conversations []models.Conversation }

type SetMessages struct{ Messages []models.Message }

type AddMessage struct{ Message models.Message }

// ReplaceMessage swaps the optimistic entry identified by TempID for its
// confirmed counterpart, keeping list position.
type ReplaceMessage struct {
	TempID  string
	Message models.Message
}

type SetCurrentChat struct{ Ref *models.ChatRef }

type SetOnlineUsers struct{ Users []models.User }

type SetTyping struct {
	Indicator models.TypingIndicator
	Active    bool
}

type AddRoomEvent struct{ Event RoomEvent }

type SetConnected struct{ Connected bool }

type SetLoading struct{ Loading bool }

type SetError struct{ Message string }

type ClearError struct{}

// SetConversationUnread pins a conversation's unread counter, clamped at
// zero. Used by the explicit read acknowledgment.
type SetConversationUnread struct {
	Ref   models.ChatRef
	Count int
}

// BumpConversation applies an inbound message to the conversation list:
// last-message preview, updated-at, and optionally an unread increment.
type BumpConversation struct {
	Ref             models.ChatRef
	Preview         models.LastMessage
	IncrementUnread bool
}

func (SetCurrentUser) name() string        { return "set_current_user" }
func (SetConversations) name() string      { return "set_conversations" }
func (SetMessages) name() string           { return "set_messages" }
func (AddMessage) name() string            { return "add_message" }
func (ReplaceMessage) name() string        { return "replace_message" }
func (SetCurrentChat) name() string        { return "set_current_chat" }
func (SetOnlineUsers) name() string        { return "set_online_users" }
func (SetTyping) name() string             { return "set_typing" }
func (AddRoomEvent) name() string          { return "add_room_event" }
func (SetConnected) name() string          { return "set_connected" }
func (SetLoading) name() string            { return "set_loading" }
func (SetError) name() string              { return "set_error" }
func (ClearError) name() string            { return "clear_error" }
func (SetConversationUnread) name() string { return "set_conversation_unread" }
func (BumpConversation) name() string      { return "bump_conversation" }
