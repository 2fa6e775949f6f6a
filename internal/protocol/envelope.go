package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType tags every envelope on the wire using a custom enum type for
// better type safety.
type FrameType string

// Outbound intents (client -> server)
const (
	FrameSendMessage FrameType = "send_message"
	FrameTyping      FrameType = "typing"
	FrameJoinRoom    FrameType = "join_room"
	FrameLeaveRoom   FrameType = "leave_room"
	FramePing        FrameType = "ping"
)

// Inbound events (server -> client)
const (
	FrameConnectionEstablished FrameType = "connection_established"
	FrameMessage               FrameType = "message"
	FrameOnlineUsers           FrameType = "online_users"
	FrameUserJoined            FrameType = "user_joined"
	FrameUserLeft              FrameType = "user_left"
	FrameConversationUpdated   FrameType = "conversation_updated"
	FrameError                 FrameType = "error"
	FramePong                  FrameType = "pong"
)

// String returns the string representation of the FrameType.
func (t FrameType) String() string {
	return string(t)
}

// Envelope is the raw JSON frame exchanged over the socket. Data holds the
// type-specific payload and stays opaque until the tag has been inspected.
type Envelope struct {
	Type      FrameType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Encode serializes an outbound intent into a wire frame, stamping the
// envelope with the current UTC time.
func Encode(frameType FrameType, payload any) ([]byte, error) {
	env := Envelope{
		Type:      frameType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", frameType, err)
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", frameType, err)
	}
	return frame, nil
}
