package state

import (
	"log/slog"
	"sync"

	"chatsphere-client/internal/models"
)

// roomEventCap bounds the system-notice ring buffer.
const roomEventCap = 64

// RoomEvent is a lightweight system notice (user joined/left a room).
type RoomEvent struct {
	UserID      string
	DisplayName string
	RoomID      string
	Joined      bool
	At          models.Time
}

// Snapshot is a point-in-time copy of the session state handed to readers.
type Snapshot struct {
	CurrentUser   *models.User
	Conversations []models.Conversation
	Messages      []models.Message
	CurrentChat   *models.ChatRef
	OnlineUsers   []models.User
	TypingUsers   []models.TypingIndicator
	RoomEvents    []RoomEvent
	Connected     bool
	Loading       bool
	Err           string
}

// Store is the single reducer-driven container of chat state. All mutation
// goes through Apply; the session event loop is the only writer, which keeps
// every action atomic with respect to its event sources.
type Store struct {
	mu sync.RWMutex

	currentUser   *models.User
	conversations []models.Conversation
	messages      []models.Message
	currentChat   *models.ChatRef
	onlineUsers   []models.User
	typing        map[string]models.TypingIndicator
	roomEvents    []RoomEvent
	connected     bool
	loading       bool
	err           string

	notify chan struct{}
	log    *slog.Logger
}

// NewStore builds an empty store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		typing: make(map[string]models.TypingIndicator),
		notify: make(chan struct{}, 1),
		log:    log,
	}
}

// Updates returns a coalesced notification channel: at least one tick is
// delivered after any state change. Readers follow up with Snapshot.
func (s *Store) Updates() <-chan struct{} {
	return s.notify
}

// Apply runs one action through the reducer.
func (s *Store) Apply(action Action) {
	s.mu.Lock()
	s.reduce(action)
	s.mu.Unlock()

	s.log.Debug("state updated", "action", action.name())
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Store) reduce(action Action) {
	switch a := action.(type) {
	case SetCurrentUser:
		u := a.User
		s.currentUser = &u

	case SetConversations:
		s.conversations = a.Conversations

	case SetMessages:
		s.messages = a.Messages

	case AddMessage:
		s.messages = append(s.messages, a.Message)

	case ReplaceMessage:
		for i := range s.messages {
			if s.messages[i].ID == a.TempID {
				s.messages[i] = a.Message
				return
			}
		}
		// Temp entry already gone; keep the confirmed one anyway so the
		// message is never lost.
		s.messages = append(s.messages, a.Message)

	case SetCurrentChat:
		s.currentChat = a.Ref

	case SetOnlineUsers:
		// Full snapshot replace, no merge.
		s.onlineUsers = a.Users

	case SetTyping:
		if a.Active {
			s.typing[a.Indicator.Key()] = a.Indicator
		} else {
			delete(s.typing, a.Indicator.Key())
		}

	case AddRoomEvent:
		s.roomEvents = append(s.roomEvents, a.Event)
		if len(s.roomEvents) > roomEventCap {
			s.roomEvents = s.roomEvents[len(s.roomEvents)-roomEventCap:]
		}

	case SetConnected:
		s.connected = a.Connected

	case SetLoading:
		s.loading = a.Loading

	case SetError:
		s.err = a.Message

	case ClearError:
		s.err = ""

	case SetConversationUnread:
		count := a.Count
		if count < 0 {
			count = 0
		}
		for i := range s.conversations {
			if s.conversations[i].Ref() == a.Ref {
				s.conversations[i].UnreadCount = count
				return
			}
		}

	case BumpConversation:
		for i := range s.conversations {
			if s.conversations[i].Ref() == a.Ref {
				preview := a.Preview
				s.conversations[i].LastMessage = &preview
				s.conversations[i].UpdatedAt = preview.CreatedAt
				if a.IncrementUnread {
					s.conversations[i].UnreadCount++
				}
				return
			}
		}
		// First message of a conversation we have not listed yet; a REST
		// refresh will fill in the display name.
		conv := models.Conversation{
			ChatType:  a.Ref.Type,
			ChatID:    a.Ref.ID,
			UpdatedAt: a.Preview.CreatedAt,
		}
		preview := a.Preview
		conv.LastMessage = &preview
		if a.IncrementUnread {
			conv.UnreadCount = 1
		}
		s.conversations = append(s.conversations, conv)

	default:
		s.log.Warn("unhandled action", "action", action.name())
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Conversations: append([]models.Conversation(nil), s.conversations...),
		Messages:      append([]models.Message(nil), s.messages...),
		OnlineUsers:   append([]models.User(nil), s.onlineUsers...),
		RoomEvents:    append([]RoomEvent(nil), s.roomEvents...),
		Connected:     s.connected,
		Loading:       s.loading,
		Err:           s.err,
	}
	if s.currentUser != nil {
		u := *s.currentUser
		snap.CurrentUser = &u
	}
	if s.currentChat != nil {
		ref := *s.currentChat
		snap.CurrentChat = &ref
	}
	snap.TypingUsers = make([]models.TypingIndicator, 0, len(s.typing))
	for _, t := range s.typing {
		snap.TypingUsers = append(snap.TypingUsers, t)
	}
	return snap
}

// CurrentChat returns the active chat selection without copying the rest of
// the state.
func (s *Store) CurrentChat() *models.ChatRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentChat == nil {
		return nil
	}
	ref := *s.currentChat
	return &ref
}

// Messages returns a copy of the visible message list.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages...)
}
