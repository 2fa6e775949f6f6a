// Package session wires the transport, reconciliation, membership and unread
// components into the single event loop that owns all chat state mutation.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chatsphere-client/internal/clienterr"
	"chatsphere-client/internal/membership"
	"chatsphere-client/internal/models"
	"chatsphere-client/internal/protocol"
	"chatsphere-client/internal/reconcile"
	"chatsphere-client/internal/state"
	"chatsphere-client/internal/transport"
	"chatsphere-client/internal/unread"
)

// ErrNoChatSelected is returned by chat-scoped commands when no conversation
// is open.
var ErrNoChatSelected = errors.New("no chat selected")

// API is the REST collaborator surface the session consumes.
type API interface {
	GetConversations(ctx context.Context) ([]models.Conversation, error)
	GetMessages(ctx context.Context, chatType models.ChatType, chatID string, limit, offset int) ([]models.Message, error)
	GetRooms(ctx context.Context) ([]models.Room, error)
	GetOnlineUsers(ctx context.Context) ([]models.User, error)
	GetRoomOnlineCount(ctx context.Context, roomID string) (int, error)
	MarkConversationAsRead(ctx context.Context, chatType models.ChatType, chatID string) error
}

// Transport is the connection manager surface the session consumes.
// Satisfied by *transport.Conn.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Reconnect(ctx context.Context) error
	Send(frameType protocol.FrameType, payload any) error
	Events() <-chan protocol.Event
	States() <-chan transport.StateChange
}

// Config tunes session behavior. Zero fields fall back to defaults.
type Config struct {
	// EchoWindow is the content-dedup tolerance passed to the reconciler.
	EchoWindow time.Duration
	// TypingTTL expires typing indicators that were never explicitly
	// cleared by the sender.
	TypingTTL time.Duration
	// HistoryPageSize is the message count fetched on chat switch.
	HistoryPageSize int
	Logger          *slog.Logger
}

func (c *Config) withDefaults() {
	if c.TypingTTL == 0 {
		c.TypingTTL = 5 * time.Second
	}
	if c.HistoryPageSize == 0 {
		c.HistoryPageSize = 50
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client is the realtime chat session exposed to the UI layer: a state
// snapshot plus imperative commands.
type Client struct {
	cfg  Config
	log  *slog.Logger
	api  API
	conn Transport

	store   *state.Store
	rooms   *membership.Controller
	engine  *reconcile.Engine
	tracker *unread.Tracker

	mu         sync.Mutex
	selfID     string
	typingSeen map[string]time.Time

	historyGen atomic.Int64
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New assembles a session around an already-constructed transport and REST
// client.
func New(cfg Config, conn Transport, api API) *Client {
	cfg.withDefaults()
	store := state.NewStore(cfg.Logger)
	return &Client{
		cfg:        cfg,
		log:        cfg.Logger,
		api:        api,
		conn:       conn,
		store:      store,
		rooms:      membership.NewController(conn, cfg.Logger),
		engine:     reconcile.NewEngine(store, conn, cfg.EchoWindow, cfg.Logger),
		tracker:    unread.NewTracker(store, api, cfg.Logger),
		typingSeen: make(map[string]time.Time),
	}
}

// Store exposes the underlying state store, mainly for tests.
func (c *Client) Store() *state.Store {
	return c.store
}

// Snapshot returns the current session state copy.
func (c *Client) Snapshot() state.Snapshot {
	return c.store.Snapshot()
}

// Updates returns the coalesced change-notification channel.
func (c *Client) Updates() <-chan struct{} {
	return c.store.Updates()
}

// Connect opens the socket and starts the event loop.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.conn.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.loopDone == nil {
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.loopCancel = cancel
		done := make(chan struct{})
		c.loopDone = done
		go c.run(loopCtx, done)
	}
	c.mu.Unlock()
	return nil
}

// Disconnect tears down the socket and stops the event loop.
func (c *Client) Disconnect() {
	c.conn.Disconnect()

	c.mu.Lock()
	cancel, done := c.loopCancel, c.loopDone
	c.loopCancel, c.loopDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.store.Apply(state.SetConnected{Connected: false})
}

// Reconnect is the manual retry affordance after a terminal disconnect.
func (c *Client) Reconnect(ctx context.Context) error {
	c.store.Apply(state.ClearError{})
	if err := c.conn.Reconnect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	if c.loopDone == nil {
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.loopCancel = cancel
		done := make(chan struct{})
		c.loopDone = done
		go c.run(loopCtx, done)
	}
	c.mu.Unlock()
	return nil
}

// run is the session event loop: the sole writer of chat state.
func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	sweep := time.NewTicker(c.cfg.TypingTTL / 2)
	defer sweep.Stop()

	for {
		select {
		case ev := <-c.conn.Events():
			c.handleEvent(ctx, ev)

		case change := <-c.conn.States():
			c.handleStateChange(ctx, change)

		case <-sweep.C:
			c.expireTyping()

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleStateChange(ctx context.Context, change transport.StateChange) {
	switch change.New {
	case transport.StateOpen:
		c.store.Apply(state.SetConnected{Connected: true})
		// Server-side room membership died with the old socket.
		c.rooms.Rejoin()
		go c.refresh(ctx)

	case transport.StateClosed:
		c.store.Apply(state.SetConnected{Connected: false})
		if change.Err != nil {
			c.log.Warn("connection closed", "kind", clienterr.KindOf(change.Err), "err", change.Err)
			c.store.Apply(state.SetError{Message: "disconnected: " + change.Err.Error()})
		}

	default:
		// Connecting/Closing are transient; the UI only cares about the
		// connected flag.
	}
}

func (c *Client) handleEvent(ctx context.Context, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.ConnectionEstablishedEvent:
		if e.User != nil {
			c.mu.Lock()
			c.selfID = e.User.ID
			c.mu.Unlock()
			c.store.Apply(state.SetCurrentUser{User: *e.User})
		}

	case protocol.MessageEvent:
		current := c.store.CurrentChat()
		disposition := c.engine.HandleInbound(e.Message, current)
		// Replays must not touch any badge: an open chat never accrues
		// unread and a background one must count each message once.
		if disposition != reconcile.DispositionDuplicate {
			c.tracker.HandleInbound(ctx, e.Message, c.SelfID(), disposition.Routed())
		}

	case protocol.TypingEvent:
		indicator := e.Indicator()
		if e.IsTyping {
			c.mu.Lock()
			c.typingSeen[indicator.Key()] = time.Now()
			c.mu.Unlock()
		}
		c.store.Apply(state.SetTyping{Indicator: indicator, Active: e.IsTyping})

	case protocol.OnlineUsersEvent:
		c.store.Apply(state.SetOnlineUsers{Users: e.Users})

	case protocol.RoomPresenceEvent:
		c.store.Apply(state.AddRoomEvent{Event: state.RoomEvent{
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			RoomID:      e.RoomID,
			Joined:      e.Joined,
			At:          models.Now(),
		}})
		if !e.Joined {
			// A departing user is no longer typing anywhere in that room.
			c.store.Apply(state.SetTyping{
				Indicator: models.TypingIndicator{UserID: e.UserID, ChatID: e.RoomID},
				Active:    false,
			})
		}

	case protocol.ConversationUpdatedEvent:
		go c.tracker.Refresh(ctx)

	case protocol.ErrorEvent:
		c.store.Apply(state.SetError{Message: e.Message})

	default:
		c.log.Debug("unhandled event", "type", ev.FrameType())
	}
}

// refresh pulls conversations and the online snapshot after (re)connect.
func (c *Client) refresh(ctx context.Context) {
	c.tracker.Refresh(ctx)
	users, err := c.api.GetOnlineUsers(ctx)
	if err != nil {
		c.log.Warn("online users refresh failed", "err", err)
		return
	}
	c.store.Apply(state.SetOnlineUsers{Users: users})
}

func (c *Client) expireTyping() {
	cutoff := time.Now().Add(-c.cfg.TypingTTL)

	c.mu.Lock()
	var stale []string
	for key, seen := range c.typingSeen {
		if seen.Before(cutoff) {
			stale = append(stale, key)
			delete(c.typingSeen, key)
		}
	}
	c.mu.Unlock()

	if len(stale) == 0 {
		return
	}
	for _, t := range c.store.Snapshot().TypingUsers {
		for _, key := range stale {
			if t.Key() == key {
				c.store.Apply(state.SetTyping{Indicator: t, Active: false})
			}
		}
	}
}

// SelfID returns the authenticated user id, once known.
func (c *Client) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// SendMessage sends content to the currently open chat, applying the
// optimistic copy first.
func (c *Client) SendMessage(content, messageType, replyToID string) (models.Message, error) {
	current := c.store.CurrentChat()
	if current == nil {
		return models.Message{}, ErrNoChatSelected
	}
	return c.engine.SendLocal(*current, c.SelfID(), content, messageType, replyToID)
}

// SetCurrentChat switches the active conversation: membership transition,
// history reload and read acknowledgment. Passing nil deselects.
func (c *Client) SetCurrentChat(ctx context.Context, ref *models.ChatRef) {
	c.rooms.SetCurrentChat(ref)
	c.store.Apply(state.SetCurrentChat{Ref: ref})
	c.store.Apply(state.SetMessages{Messages: nil})

	if ref == nil {
		c.store.Apply(state.SetLoading{Loading: false})
		return
	}

	c.store.Apply(state.SetLoading{Loading: true})
	gen := c.historyGen.Add(1)
	target := *ref

	go func() {
		messages, err := c.api.GetMessages(ctx, target.Type, target.ID, c.cfg.HistoryPageSize, 0)
		if c.historyGen.Load() != gen {
			// The user already switched away; drop the stale page.
			return
		}
		if err != nil {
			c.log.Warn("history load failed", "chat", target, "err", err)
			c.store.Apply(state.SetError{Message: "failed to load messages"})
			c.store.Apply(state.SetLoading{Loading: false})
			return
		}
		c.store.Apply(state.SetMessages{Messages: messages})
		c.store.Apply(state.SetLoading{Loading: false})
		c.tracker.MarkConversationAsRead(ctx, target)
	}()
}

// SendTyping reports the local user's typing state for the open chat.
func (c *Client) SendTyping(isTyping bool) {
	current := c.store.CurrentChat()
	if current == nil {
		return
	}
	err := c.conn.Send(protocol.FrameTyping, protocol.TypingPayload{
		ChatType: current.Type,
		ChatID:   current.ID,
		IsTyping: isTyping,
	})
	if err != nil {
		c.log.Debug("typing intent failed", "err", err)
	}
}

// JoinRoom issues a manual join that bypasses chat-switch bookkeeping.
func (c *Client) JoinRoom(roomID string) {
	c.rooms.JoinRoom(roomID)
}

// LeaveRoom issues a manual leave that bypasses chat-switch bookkeeping.
func (c *Client) LeaveRoom(roomID string) {
	c.rooms.LeaveRoom(roomID)
}

// MarkConversationAsRead zeroes a conversation badge.
func (c *Client) MarkConversationAsRead(ctx context.Context, ref models.ChatRef) {
	c.tracker.MarkConversationAsRead(ctx, ref)
}

// ClearError clears the transient error field.
func (c *Client) ClearError() {
	c.store.Apply(state.ClearError{})
}

// Rooms lists the public room directory.
func (c *Client) Rooms(ctx context.Context) ([]models.Room, error) {
	return c.api.GetRooms(ctx)
}

// RoomOnlineCount returns the live occupant count of a room.
func (c *Client) RoomOnlineCount(ctx context.Context, roomID string) (int, error) {
	return c.api.GetRoomOnlineCount(ctx, roomID)
}
