package models

// ChatType discriminates the three conversation kinds supported by the
// chatSphere protocol.
type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeRoom    ChatType = "room"
)

// String returns the string representation of the ChatType.
func (t ChatType) String() string {
	return string(t)
}

// IsValid checks if the ChatType is a valid enum value.
func (t ChatType) IsValid() bool {
	switch t {
	case ChatTypePrivate, ChatTypeGroup, ChatTypeRoom:
		return true
	default:
		return false
	}
}

// ChatRef identifies a single conversation target. It is a value type and
// is compared by structural equality.
type ChatRef struct {
	Type ChatType `json:"chat_type"`
	ID   string   `json:"chat_id"`
}

// NewChatRef builds a ChatRef for the given kind and id.
func NewChatRef(t ChatType, id string) ChatRef {
	return ChatRef{Type: t, ID: id}
}

// IsRoom reports whether the ref points at a room. Rooms are the only chat
// kind that requires an explicit join/leave on the wire.
func (r ChatRef) IsRoom() bool {
	return r.Type == ChatTypeRoom
}

// IsZero reports whether the ref is the empty value (no chat selected).
func (r ChatRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

func (r ChatRef) String() string {
	return string(r.Type) + ":" + r.ID
}
