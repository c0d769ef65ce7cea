package usecase

import (
	"context"

	"lostpaws/internal/domain/entity"
	"lostpaws/internal/domain/repository"
	"lostpaws/internal/infrastructure/notify"
	"lostpaws/pkg/errors"
)

// ChatMessages covers the message flow inside a chat: send, history and the
// read mark that resets unread counts.
type ChatMessages struct {
	chats    repository.ChatRepository
	unread   *UnreadTracker
	notifier notify.Publisher
}

func NewChatMessages(chats repository.ChatRepository, unread *UnreadTracker, notifier notify.Publisher) *ChatMessages {
	return &ChatMessages{
		chats:    chats,
		unread:   unread,
		notifier: notifier,
	}
}

// Send persists a message from actorID into the chat. The sender role is
// derived from which side of the conversation the actor is on; outsiders are
// rejected. Sending never mutates the chat beyond its updated_at bump.
func (m *ChatMessages) Send(ctx context.Context, chatID, actorID, text string) (*entity.Message, error) {
	chat, err := m.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	role, ok := chat.RoleOf(actorID)
	if !ok {
		return nil, errors.Forbidden("you are not a participant in this chat", nil)
	}
	if chat.Status != entity.ChatStatusActive {
		return nil, errors.BadRequest("chat is archived", nil)
	}

	msg := &entity.Message{
		ChatID:     chatID,
		SenderType: role,
		Text:       text,
	}
	if err := m.chats.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	m.unread.Increment(ctx, chat, role)

	counterpart := chat.UserID
	if role == entity.SenderUser {
		counterpart = chat.OwnerID
	}
	m.notifier.Publish(notify.Event{
		Type:    notify.EventNewMessage,
		ChatID:  chatID,
		Payload: msg,
		Viewers: []string{counterpart},
	})

	return msg, nil
}

// History returns chat messages in sequence order. Participants see their own
// chats; admins see any.
func (m *ChatMessages) History(ctx context.Context, chatID, actorID string, isAdmin bool, limit, offset int) ([]*entity.Message, int64, error) {
	chat, err := m.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	if !chat.HasParticipant(actorID) && !isAdmin {
		return nil, 0, errors.Forbidden("you are not a participant in this chat", nil)
	}

	return m.chats.ListMessages(ctx, chatID, limit, offset)
}

// MarkRead marks the counterpart's messages read from the actor's
// perspective.
func (m *ChatMessages) MarkRead(ctx context.Context, chatID, actorID string) error {
	chat, err := m.chats.GetByID(ctx, chatID)
	if err != nil {
		return err
	}

	role, ok := chat.RoleOf(actorID)
	if !ok {
		return errors.Forbidden("you are not a participant in this chat", nil)
	}

	return m.unread.MarkRead(ctx, chat, role)
}

// UnreadCount serves the badge endpoint.
func (m *ChatMessages) UnreadCount(ctx context.Context, chatID string, viewerRole entity.SenderType) (int, error) {
	if !viewerRole.Valid() {
		return 0, errors.BadRequest("viewer_role must be user or owner", nil)
	}
	if _, err := m.chats.GetByID(ctx, chatID); err != nil {
		return 0, err
	}
	return m.unread.CountFor(ctx, chatID, viewerRole)
}
