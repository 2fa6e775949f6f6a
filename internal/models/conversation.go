package models

// LastMessage is the preview of the most recent message in a conversation.
type LastMessage struct {
	Content     string `json:"content"`
	CreatedAt   Time   `json:"created_at"`
	FromUserID  string `json:"from_user_id"`
	MessageType string `json:"message_type,omitempty"`
}

// Conversation is one entry in the user's conversation list. The unread
// count is monotonically non-negative and is only reset to zero by an
// explicit read acknowledgment.
type Conversation struct {
	ID          int64        `json:"id,omitempty"`
	ChatType    ChatType     `json:"chat_type"`
	ChatID      string       `json:"chat_id"`
	Name        string       `json:"name"`
	UnreadCount int          `json:"unread_count"`
	IsPinned    bool         `json:"is_pinned,omitempty"`
	IsMuted     bool         `json:"is_muted,omitempty"`
	UpdatedAt   Time         `json:"updated_at"`
	OtherUser   *User        `json:"other_user,omitempty"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
}

// Ref returns the ChatRef identifying the conversation.
func (c Conversation) Ref() ChatRef {
	return ChatRef{Type: c.ChatType, ID: c.ChatID}
}
