// Package reconcile maps locally-originated optimistic messages to their
// server-confirmed echoes and filters inbound messages to the active
// conversation.
package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chatsphere-client/internal/clienterr"
	"chatsphere-client/internal/models"
	"chatsphere-client/internal/protocol"
	"chatsphere-client/internal/state"
)

// DefaultEchoWindow bounds the content-based dedup heuristic: an inbound
// message with the same (content, sender) as an existing entry is treated as
// its echo only when their timestamps are within this window. The heuristic
// exists because the server assigns ids after the optimistic copy was
// already rendered, so the two are content-identical but id-distinct.
const DefaultEchoWindow = 5 * time.Second

// seenCap bounds the replay guard. Server ids are remembered FIFO so a
// replayed frame is dropped even when its message was never routed into the
// visible list (and so never landed in the store).
const seenCap = 512

// Sender transmits outbound intents. Satisfied by *transport.Conn.
type Sender interface {
	Send(frameType protocol.FrameType, payload any) error
}

// Disposition says what HandleInbound did with a message.
type Disposition int

const (
	// DispositionFiltered: the message belongs to another conversation and
	// was kept out of the visible list.
	DispositionFiltered Disposition = iota
	// DispositionDuplicate: the message was already present and was dropped.
	DispositionDuplicate
	// DispositionAdded: the message was appended to the visible list.
	DispositionAdded
	// DispositionPromoted: the message replaced its optimistic counterpart.
	DispositionPromoted
)

func (d Disposition) String() string {
	switch d {
	case DispositionFiltered:
		return "filtered"
	case DispositionDuplicate:
		return "duplicate"
	case DispositionAdded:
		return "added"
	case DispositionPromoted:
		return "promoted"
	default:
		return "unknown"
	}
}

// Routed reports whether the message ended up in the visible list (either
// freshly added or as a promotion).
func (d Disposition) Routed() bool {
	return d == DispositionAdded || d == DispositionPromoted
}

// Engine is the message reconciliation engine. It is driven solely by the
// session event loop, so the replay guard needs no locking.
type Engine struct {
	store      *state.Store
	sender     Sender
	echoWindow time.Duration
	log        *slog.Logger

	seen      map[string]struct{}
	seenOrder []string
}

func NewEngine(store *state.Store, sender Sender, echoWindow time.Duration, log *slog.Logger) *Engine {
	if echoWindow <= 0 {
		echoWindow = DefaultEchoWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:      store,
		sender:     sender,
		echoWindow: echoWindow,
		log:        log,
		seen:       make(map[string]struct{}),
	}
}

// SendLocal applies an optimistic message to the store so the sender sees it
// with zero perceived latency, then transmits the send_message intent.
func (e *Engine) SendLocal(ref models.ChatRef, fromUserID, content, messageType, replyToID string) (models.Message, error) {
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	msg := models.Message{
		ID:          models.TempIDPrefix + uuid.New().String(),
		FromUserID:  fromUserID,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   models.Now(),
		ReplyToID:   replyToID,
		ChatType:    ref.Type,
		ChatID:      ref.ID,
	}
	switch ref.Type {
	case models.ChatTypeRoom:
		msg.RoomID = ref.ID
	case models.ChatTypeGroup:
		msg.GroupID = ref.ID
	case models.ChatTypePrivate:
		msg.ToUserID = ref.ID
	}

	e.store.Apply(state.AddMessage{Message: msg})

	err := e.sender.Send(protocol.FrameSendMessage, protocol.SendMessagePayload{
		ChatType:    ref.Type,
		ChatID:      ref.ID,
		Content:     content,
		MessageType: messageType,
		ReplyToID:   replyToID,
	})
	if err != nil {
		return msg, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// HandleInbound routes a confirmed message into the visible list, deduping
// against optimistic entries and replay artifacts. Messages for other
// conversations are filtered here but still reach the unread tracker,
// while replays of an already-delivered id are dropped outright.
func (e *Engine) HandleInbound(msg models.Message, current *models.ChatRef) Disposition {
	if msg.ID != "" && !msg.IsOptimistic() {
		if _, dup := e.seen[msg.ID]; dup {
			e.log.Debug("dropping replayed message",
				"err", clienterr.New(clienterr.KindReconciliation, "dedup",
					fmt.Errorf("message %s already delivered", msg.ID)))
			return DispositionDuplicate
		}
		e.remember(msg.ID)
	}

	if !Matches(msg, current) {
		return DispositionFiltered
	}

	for _, existing := range e.store.Messages() {
		// History pages loaded over REST never pass through the replay
		// guard, so the visible list is still scanned by id.
		if existing.ID == msg.ID {
			e.log.Debug("dropping duplicate message", "id", msg.ID)
			return DispositionDuplicate
		}
		if existing.Content == msg.Content && existing.FromUserID == msg.FromUserID &&
			withinWindow(existing.CreatedAt.Time, msg.CreatedAt.Time, e.echoWindow) {
			if existing.IsOptimistic() && !msg.IsOptimistic() {
				e.store.Apply(state.ReplaceMessage{TempID: existing.ID, Message: msg})
				e.log.Debug("promoted optimistic message", "temp_id", existing.ID, "id", msg.ID)
				return DispositionPromoted
			}
			e.log.Debug("dropping echoed duplicate", "id", msg.ID, "existing", existing.ID)
			return DispositionDuplicate
		}
	}

	e.store.Apply(state.AddMessage{Message: msg})
	return DispositionAdded
}

func (e *Engine) remember(id string) {
	if len(e.seenOrder) == seenCap {
		delete(e.seen, e.seenOrder[0])
		e.seenOrder = e.seenOrder[1:]
	}
	e.seen[id] = struct{}{}
	e.seenOrder = append(e.seenOrder, id)
}

// Matches applies the type-specific routing filter against the currently
// selected chat.
func Matches(msg models.Message, current *models.ChatRef) bool {
	if current == nil || msg.ChatType != current.Type {
		return false
	}
	switch current.Type {
	case models.ChatTypePrivate:
		// Either direction of the open private conversation.
		return msg.FromUserID == current.ID || msg.TargetID() == current.ID
	case models.ChatTypeRoom, models.ChatTypeGroup:
		return msg.TargetID() == current.ID
	default:
		return false
	}
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}
