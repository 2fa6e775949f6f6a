package models

import "strings"

// Message type constants
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
	MessageTypeEmoji  = "emoji"
)

// TempIDPrefix marks optimistic messages that have not been confirmed by the
// server yet. Their ids are client-generated and are replaced wholesale once
// the server echo arrives.
const TempIDPrefix = "temp-"

// Message is a single chat message. A message has two lifecycles: optimistic
// (client-generated temporary id, applied locally before the server has seen
// it) and confirmed (server-issued id).
type Message struct {
	ID          string   `json:"id"`
	FromUserID  string   `json:"from_user_id"`
	Content     string   `json:"content"`
	MessageType string   `json:"message_type"`
	CreatedAt   Time     `json:"created_at"`
	IsEdited    bool     `json:"is_edited"`
	ReplyToID   string   `json:"reply_to_id,omitempty"`
	ChatType    ChatType `json:"chat_type"`
	ChatID      string   `json:"chat_id,omitempty"`
	RoomID      string   `json:"room_id,omitempty"`
	ToUserID    string   `json:"to_user_id,omitempty"`
	GroupID     string   `json:"group_id,omitempty"`
}

// IsOptimistic reports whether the message still carries a client-generated
// temporary id.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// TargetID returns the routing id of the message for its chat kind. The
// backend fills chat_id alongside the kind-specific field, so prefer the
// specific one and fall back to chat_id.
func (m Message) TargetID() string {
	switch m.ChatType {
	case ChatTypeRoom:
		if m.RoomID != "" {
			return m.RoomID
		}
	case ChatTypeGroup:
		if m.GroupID != "" {
			return m.GroupID
		}
	case ChatTypePrivate:
		if m.ToUserID != "" {
			return m.ToUserID
		}
	}
	return m.ChatID
}

// ConversationRef derives the conversation a message belongs to from the
// perspective of selfID. For private messages the conversation is keyed by
// the other party, so an echo of our own message maps to the recipient while
// an inbound message maps to the sender.
func (m Message) ConversationRef(selfID string) ChatRef {
	if m.ChatType == ChatTypePrivate {
		other := m.FromUserID
		if m.FromUserID == selfID {
			other = m.TargetID()
		}
		return ChatRef{Type: ChatTypePrivate, ID: other}
	}
	return ChatRef{Type: m.ChatType, ID: m.TargetID()}
}
