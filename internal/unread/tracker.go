// Package unread derives per-conversation unread counters and last-message
// previews from inbound traffic and explicit read acknowledgments.
package unread

import (
	"context"
	"log/slog"

	"chatsphere-client/internal/models"
	"chatsphere-client/internal/state"
)

// ConversationAPI is the slice of the REST collaborator the tracker needs.
type ConversationAPI interface {
	GetConversations(ctx context.Context) ([]models.Conversation, error)
	MarkConversationAsRead(ctx context.Context, chatType models.ChatType, chatID string) error
}

// Tracker keeps conversation badges correct even for chats that are not
// currently open.
type Tracker struct {
	store *state.Store
	api   ConversationAPI
	log   *slog.Logger
}

func NewTracker(store *state.Store, api ConversationAPI, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: store, api: api, log: log}
}

// HandleInbound processes every inbound message regardless of whether it was
// routed into the visible list. A chat the user is actively viewing must
// never accrue unread count, so routed messages trigger an immediate read
// acknowledgment instead.
func (t *Tracker) HandleInbound(ctx context.Context, msg models.Message, selfID string, routedToCurrent bool) {
	ref := msg.ConversationRef(selfID)

	increment := !routedToCurrent && msg.FromUserID != selfID
	t.store.Apply(state.BumpConversation{
		Ref: ref,
		Preview: models.LastMessage{
			Content:     msg.Content,
			CreatedAt:   msg.CreatedAt,
			FromUserID:  msg.FromUserID,
			MessageType: msg.MessageType,
		},
		IncrementUnread: increment,
	})

	if routedToCurrent && msg.FromUserID != selfID {
		t.MarkConversationAsRead(ctx, ref)
	}
}

// MarkConversationAsRead zeroes the local counter optimistically and then
// confirms with the REST collaborator. A failure there is logged but the
// optimistic zero stays: a stale badge is preferable to one flapping back.
func (t *Tracker) MarkConversationAsRead(ctx context.Context, ref models.ChatRef) {
	t.store.Apply(state.SetConversationUnread{Ref: ref, Count: 0})

	if err := t.api.MarkConversationAsRead(ctx, ref.Type, ref.ID); err != nil {
		t.log.Warn("mark conversation read failed", "chat", ref, "err", err)
	}
}

// Refresh replaces the conversation list from the REST collaborator. Errors
// surface into the store's error field as non-fatal.
func (t *Tracker) Refresh(ctx context.Context) {
	conversations, err := t.api.GetConversations(ctx)
	if err != nil {
		t.log.Warn("conversation refresh failed", "err", err)
		t.store.Apply(state.SetError{Message: "failed to refresh conversations"})
		return
	}
	t.store.Apply(state.SetConversations{Conversations: conversations})
}
