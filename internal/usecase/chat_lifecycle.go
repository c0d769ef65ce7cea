package usecase

import (
	"context"

	"lostpaws/internal/domain/entity"
	"lostpaws/internal/domain/repository"
	"lostpaws/internal/infrastructure/notify"
	"lostpaws/pkg/errors"
	"lostpaws/pkg/logger"
)

// ChatLifecycle drives the archive/restore/delete state machine. Archive and
// restore require the listing owner or an admin; delete is admin only and
// irreversible. Admin capability is a bool resolved at the auth boundary and
// passed down, never re-derived here.
type ChatLifecycle struct {
	chats    repository.ChatRepository
	unread   *UnreadTracker
	notifier notify.Publisher
}

func NewChatLifecycle(chats repository.ChatRepository, unread *UnreadTracker, notifier notify.Publisher) *ChatLifecycle {
	return &ChatLifecycle{
		chats:    chats,
		unread:   unread,
		notifier: notifier,
	}
}

func (l *ChatLifecycle) Archive(ctx context.Context, chatID, actorID string, isAdmin bool) error {
	chat, err := l.authorize(ctx, chatID, actorID, isAdmin)
	if err != nil {
		return err
	}

	if err := l.chats.UpdateStatus(ctx, chatID, entity.ChatStatusActive, entity.ChatStatusArchived, actorID); err != nil {
		return err
	}

	l.notifyStateChanged(chat, string(entity.ChatStatusArchived), false)
	return nil
}

// Restore reopens an archived chat. It deliberately does not re-check the
// active-chat cap: owners reclaiming old conversations are not counted
// against new contacts.
func (l *ChatLifecycle) Restore(ctx context.Context, chatID, actorID string, isAdmin bool) error {
	chat, err := l.authorize(ctx, chatID, actorID, isAdmin)
	if err != nil {
		return err
	}

	if err := l.chats.UpdateStatus(ctx, chatID, entity.ChatStatusArchived, entity.ChatStatusActive, actorID); err != nil {
		return err
	}

	l.notifyStateChanged(chat, string(entity.ChatStatusActive), false)
	return nil
}

// Delete removes the chat and cascades its messages, regardless of status.
func (l *ChatLifecycle) Delete(ctx context.Context, chatID, actorID string, isAdmin bool) error {
	if !isAdmin {
		return errors.Forbidden("only administrators may delete chats", nil)
	}

	chat, err := l.chats.GetByID(ctx, chatID)
	if err != nil {
		return err
	}

	if err := l.chats.Delete(ctx, chatID); err != nil {
		return err
	}
	l.unread.Forget(chatID)

	logger.Info("chat %s deleted by admin %s", chatID, actorID)
	l.notifyStateChanged(chat, "deleted", true)
	return nil
}

func (l *ChatLifecycle) authorize(ctx context.Context, chatID, actorID string, isAdmin bool) (*entity.Chat, error) {
	chat, err := l.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if actorID != chat.OwnerID && !isAdmin {
		return nil, errors.Forbidden("only the listing owner may change this chat", nil)
	}
	return chat, nil
}

func (l *ChatLifecycle) notifyStateChanged(chat *entity.Chat, status string, deleted bool) {
	l.notifier.Publish(notify.Event{
		Type:    notify.EventChatStateChanged,
		ChatID:  chat.ID,
		Deleted: deleted,
		Payload: map[string]string{"status": status},
		Viewers: []string{chat.UserID, chat.OwnerID},
	})
}
