// Package membership issues join_room / leave_room intents as the user moves
// between chats. Rooms require an explicit membership on the server; private
// and group chats do not.
package membership

import (
	"log/slog"
	"sync"

	"chatsphere-client/internal/models"
	"chatsphere-client/internal/protocol"
)

// Sender transmits outbound intents. Satisfied by *transport.Conn.
type Sender interface {
	Send(frameType protocol.FrameType, payload any) error
}

// Controller tracks the single currently-joined room. At most one room
// membership is ever held through chat switching, which is what prevents
// staying joined to N rooms after N switches.
type Controller struct {
	mu     sync.Mutex
	sender Sender
	joined string
	log    *slog.Logger
}

func NewController(sender Sender, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{sender: sender, log: log}
}

// SetCurrentChat performs the membership transition for a chat switch: leave
// the previously joined room if the selection moved off it, join the new one
// if it is a room.
func (c *Controller) SetCurrentChat(ref *models.ChatRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := ""
	if ref != nil && ref.IsRoom() {
		next = ref.ID
	}
	if c.joined == next {
		return
	}

	if c.joined != "" {
		c.send(protocol.FrameLeaveRoom, c.joined)
	}
	if next != "" {
		c.send(protocol.FrameJoinRoom, next)
	}
	c.joined = next
}

// JoinRoom sends a bare join intent. It deliberately does not update the
// currently-joined record: pre-join browsing of the room list must not
// disturb chat-switch bookkeeping.
func (c *Controller) JoinRoom(roomID string) {
	c.send(protocol.FrameJoinRoom, roomID)
}

// LeaveRoom sends a bare leave intent, bypassing the record like JoinRoom.
func (c *Controller) LeaveRoom(roomID string) {
	c.send(protocol.FrameLeaveRoom, roomID)
}

// JoinedRoom returns the room held by chat-switch bookkeeping, or "".
func (c *Controller) JoinedRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Rejoin re-emits the join intent for the recorded room. Called after a
// reconnect, since server-side membership died with the old socket.
func (c *Controller) Rejoin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joined != "" {
		c.send(protocol.FrameJoinRoom, c.joined)
	}
}

func (c *Controller) send(frameType protocol.FrameType, roomID string) {
	if err := c.sender.Send(frameType, protocol.RoomPayload{RoomID: roomID}); err != nil {
		// Membership intents are fire-and-forget; a dead socket will be
		// followed by a Rejoin once the connection is back.
		c.log.Warn("membership intent failed", "type", frameType, "room", roomID, "err", err)
	}
}
