package models

// User represents a chat user as delivered by the backend.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// TypingIndicator marks a user as typing in a chat. Indicators form a set:
// re-adding an existing entry is a no-op and removal is idempotent.
type TypingIndicator struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	ChatID      string `json:"chat_id"`
}

// Key returns the set membership key for the indicator.
func (t TypingIndicator) Key() string {
	return t.UserID + "/" + t.ChatID
}

// Room is a public chat room as listed by the rooms endpoint.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MaxMembers  int    `json:"max_members,omitempty"`
	OnlineCount int    `json:"online_count"`
	CreatedAt   Time   `json:"created_at"`
}
