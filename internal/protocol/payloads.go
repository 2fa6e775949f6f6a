package protocol

import "chatsphere-client/internal/models"

// Outbound payloads. Field names follow the chatSphere wire schema.

// SendMessagePayload carries a new chat message to the server.
type SendMessagePayload struct {
	ChatType    models.ChatType `json:"chat_type"`
	ChatID      string          `json:"chat_id"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type,omitempty"`
	ReplyToID   string          `json:"reply_to_id,omitempty"`
}

// TypingPayload signals the start or end of typing in a chat.
type TypingPayload struct {
	ChatType models.ChatType `json:"chat_type"`
	ChatID   string          `json:"chat_id"`
	IsTyping bool            `json:"is_typing"`
}

// RoomPayload carries a room id for join_room / leave_room intents.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}
