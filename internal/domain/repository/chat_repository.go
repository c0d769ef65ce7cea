package repository

import (
	"context"
	"time"

	"lostpaws/internal/domain/entity"
)

// ChatRepository is the transactional store boundary for chats and their
// messages. Implementations must make GetOrCreate and UpdateStatus single
// transactions: the active-chat cap check happens together with the insert,
// and no interleaving transition may observe a torn state.
type ChatRepository interface {
	// GetOrCreate returns the existing active chat for the triple, or inserts
	// a new one. The second return is true when a row was inserted. When the
	// caller already holds activeLimit active chats (in either role) the
	// insert fails with CHAT_LIMIT_EXCEEDED.
	GetOrCreate(ctx context.Context, petID, userID, ownerID string, activeLimit int) (*entity.Chat, bool, error)

	GetByID(ctx context.Context, id string) (*entity.Chat, error)

	// ListByParticipant returns active chats where userID is either
	// participant, newest-updated first.
	ListByParticipant(ctx context.Context, userID string) ([]*entity.Chat, error)

	// ListAll returns every chat regardless of status or participant,
	// newest-updated first. Privileged views only.
	ListAll(ctx context.Context) ([]*entity.Chat, error)

	// UpdateStatus moves a chat from one status to another, recording who
	// archived it. Fails with INVALID_TRANSITION when the row is not
	// currently in the from status.
	UpdateStatus(ctx context.Context, id string, from, to entity.ChatStatus, actorID string) error

	// Delete removes the chat and all of its messages. Irreversible.
	Delete(ctx context.Context, id string) error

	// CreateMessage persists a message, assigns id, per-chat seq and
	// created_at, and bumps the chat's updated_at, all in one transaction.
	// The chat's status is rechecked under the row lock: inserting into a
	// non-active chat fails with BAD_REQUEST even when the caller's earlier
	// status read raced an archive.
	CreateMessage(ctx context.Context, msg *entity.Message) error

	ListMessages(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error)

	// LatestMessages returns the newest message per chat for the given ids.
	// Chats with no messages are absent from the result.
	LatestMessages(ctx context.Context, chatIDs []string) (map[string]*entity.Message, error)

	// CountUnread counts messages of the given sender type with no read_at.
	CountUnread(ctx context.Context, chatID string, sender entity.SenderType) (int, error)

	// MarkRead stamps read_at on all unread messages of the given sender type
	// and returns how many rows were updated.
	MarkRead(ctx context.Context, chatID string, sender entity.SenderType, at time.Time) (int64, error)
}
