package protocol

import "chatsphere-client/internal/models"

// Event is a decoded inbound frame. The concrete type is determined by the
// envelope's type tag.
type Event interface {
	FrameType() FrameType
}

// ConnectionEstablishedEvent confirms the socket is authenticated and carries
// the current user's profile.
type ConnectionEstablishedEvent struct {
	Message string       `json:"message"`
	User    *models.User `json:"user,omitempty"`
}

func (ConnectionEstablishedEvent) FrameType() FrameType { return FrameConnectionEstablished }

// MessageEvent delivers a confirmed chat message.
type MessageEvent struct {
	Message models.Message
}

func (MessageEvent) FrameType() FrameType { return FrameMessage }

// OnlineUsersEvent is a full snapshot of the online user set. It replaces the
// previous snapshot wholesale; there is no incremental merge.
type OnlineUsersEvent struct {
	Users []models.User
}

func (OnlineUsersEvent) FrameType() FrameType { return FrameOnlineUsers }

// TypingEvent reports another user's typing state for a chat.
type TypingEvent struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsTyping    bool   `json:"is_typing"`
	ChatID      string `json:"chat_id"`
}

func (TypingEvent) FrameType() FrameType { return FrameTyping }

// Indicator converts the event into set-membership form.
func (e TypingEvent) Indicator() models.TypingIndicator {
	return models.TypingIndicator{
		UserID:      e.UserID,
		Username:    e.Username,
		DisplayName: e.DisplayName,
		ChatID:      e.ChatID,
	}
}

// RoomPresenceEvent reports a user joining or leaving a room. Joined is true
// for user_joined frames.
type RoomPresenceEvent struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	RoomID      string `json:"room_id"`
	Joined      bool   `json:"-"`
}

func (e RoomPresenceEvent) FrameType() FrameType {
	if e.Joined {
		return FrameUserJoined
	}
	return FrameUserLeft
}

// ConversationUpdatedEvent tells the client a conversation changed server-side
// and the conversation list should be refreshed.
type ConversationUpdatedEvent struct {
	ChatType  models.ChatType `json:"chat_type"`
	ChatID    string          `json:"chat_id"`
	MessageID string          `json:"message_id,omitempty"`
}

func (ConversationUpdatedEvent) FrameType() FrameType { return FrameConversationUpdated }

// ErrorEvent is a server-sent protocol error. It is surfaced to the UI and
// does not affect connection state.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) FrameType() FrameType { return FrameError }

// PongEvent answers a client ping. The transport consumes it to feed the
// heartbeat watchdog.
type PongEvent struct {
	Timestamp string `json:"timestamp,omitempty"`
}

func (PongEvent) FrameType() FrameType { return FramePong }
