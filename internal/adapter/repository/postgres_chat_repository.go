package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"lostpaws/internal/domain/entity"
	"lostpaws/internal/domain/repository"
	"lostpaws/pkg/errors"
)

type postgresChatRepository struct {
	db *sql.DB
}

func NewPostgresChatRepository(db *sql.DB) repository.ChatRepository {
	return &postgresChatRepository{db: db}
}

const chatColumns = `id, pet_id, user_id, owner_id, status, archived_at, archived_by, created_at, updated_at`

func scanChat(row interface{ Scan(...any) error }) (*entity.Chat, error) {
	var (
		chat       entity.Chat
		archivedAt sql.NullTime
		archivedBy sql.NullString
	)
	if err := row.Scan(&chat.ID, &chat.PetID, &chat.UserID, &chat.OwnerID, &chat.Status,
		&archivedAt, &archivedBy, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, err
	}
	if archivedAt.Valid {
		chat.ArchivedAt = &archivedAt.Time
	}
	chat.ArchivedBy = archivedBy.String
	return &chat, nil
}

// storeErr maps driver failures to the core taxonomy. Deadline expiry becomes
// TIMEOUT (the transaction is already rolled back by then); connection-class
// failures become STORE_UNAVAILABLE.
func storeErr(op string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Timeout(op+" timed out", err)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return errors.StoreUnavailable("chat store unreachable", err)
	}
	if stderrors.Is(err, sql.ErrConnDone) || stderrors.Is(err, sql.ErrTxDone) {
		return errors.StoreUnavailable("chat store unreachable", err)
	}
	return errors.Internal(op+" failed", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *postgresChatRepository) GetOrCreate(ctx context.Context, petID, userID, ownerID string, activeLimit int) (*entity.Chat, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storeErr("begin chat creation", err)
	}
	defer tx.Rollback()

	existing, err := scanChat(tx.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats
         WHERE pet_id = $1 AND user_id = $2 AND owner_id = $3 AND status = 'active'`,
		petID, userID, ownerID))
	if err == nil {
		return existing, false, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, storeErr("lookup chat", err)
	}

	// Cap check and insert share the transaction, and the per-user advisory
	// lock serializes creations for the same user across triples. Without it
	// two READ COMMITTED transactions for different triples could each count
	// limit-1 and both commit.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return nil, false, storeErr("lock user chats", err)
	}

	var active int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chats WHERE (user_id = $1 OR owner_id = $1) AND status = 'active'`,
		userID).Scan(&active); err != nil {
		return nil, false, storeErr("count active chats", err)
	}
	if active >= activeLimit {
		return nil, false, errors.ChatLimitExceeded(activeLimit)
	}

	chat, err := scanChat(tx.QueryRowContext(ctx,
		`INSERT INTO chats (id, pet_id, user_id, owner_id, status)
         VALUES ($1, $2, $3, $4, 'active')
         RETURNING `+chatColumns,
		uuid.New().String(), petID, userID, ownerID))
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the create race; the winner's row is what the caller gets.
			tx.Rollback()
			winner, rerr := r.findActiveTriple(ctx, petID, userID, ownerID)
			if rerr != nil {
				return nil, false, rerr
			}
			return winner, false, nil
		}
		return nil, false, storeErr("insert chat", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, storeErr("commit chat creation", err)
	}
	return chat, true, nil
}

func (r *postgresChatRepository) findActiveTriple(ctx context.Context, petID, userID, ownerID string) (*entity.Chat, error) {
	chat, err := scanChat(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats
         WHERE pet_id = $1 AND user_id = $2 AND owner_id = $3 AND status = 'active'`,
		petID, userID, ownerID))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("chat", err)
		}
		return nil, storeErr("lookup chat", err)
	}
	return chat, nil
}

func (r *postgresChatRepository) GetByID(ctx context.Context, id string) (*entity.Chat, error) {
	chat, err := scanChat(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("chat", err)
		}
		return nil, storeErr("get chat", err)
	}
	return chat, nil
}

func (r *postgresChatRepository) listChats(ctx context.Context, query string, args ...any) ([]*entity.Chat, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	defer rows.Close()

	var chats []*entity.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, storeErr("scan chat", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list chats", err)
	}
	return chats, nil
}

func (r *postgresChatRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Chat, error) {
	return r.listChats(ctx,
		`SELECT `+chatColumns+` FROM chats
         WHERE (user_id = $1 OR owner_id = $1) AND status = 'active'
         ORDER BY updated_at DESC`, userID)
}

func (r *postgresChatRepository) ListAll(ctx context.Context) ([]*entity.Chat, error) {
	return r.listChats(ctx,
		`SELECT `+chatColumns+` FROM chats ORDER BY updated_at DESC`)
}

func (r *postgresChatRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ChatStatus, actorID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin status update", err)
	}
	defer tx.Rollback()

	// Row lock serializes concurrent transitions on the same chat; the loser
	// observes the new status and fails the precondition.
	var status entity.ChatStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM chats WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("chat", err)
		}
		return storeErr("lock chat", err)
	}
	if status != from {
		return errors.InvalidTransition("chat is " + string(status) + ", expected " + string(from))
	}

	if to == entity.ChatStatusArchived {
		_, err = tx.ExecContext(ctx,
			`UPDATE chats SET status = 'archived', archived_at = now(), archived_by = $2, updated_at = now()
             WHERE id = $1`, id, actorID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE chats SET status = 'active', archived_at = NULL, archived_by = NULL, updated_at = now()
             WHERE id = $1`, id)
	}
	if err != nil {
		return storeErr("update chat status", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit status update", err)
	}
	return nil
}

func (r *postgresChatRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin chat deletion", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = $1`, id); err != nil {
		return storeErr("delete chat messages", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete chat", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.NotFound("chat", nil)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit chat deletion", err)
	}
	return nil
}

func (r *postgresChatRepository) CreateMessage(ctx context.Context, msg *entity.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin message creation", err)
	}
	defer tx.Rollback()

	// Locking the chat row serializes seq assignment per chat, which keeps
	// created_at and seq monotonically non-decreasing in insertion order.
	// The status check happens under the same lock: a send racing an archive
	// must not land a message in the just-archived chat.
	var status entity.ChatStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM chats WHERE id = $1 FOR UPDATE`, msg.ChatID).Scan(&status)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("chat", err)
		}
		return storeErr("lock chat", err)
	}
	if status != entity.ChatStatusActive {
		return errors.BadRequest("chat is archived", nil)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, chat_id, seq, sender_type, text)
         VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE chat_id = $2), $3, $4)
         RETURNING seq, created_at`,
		msg.ID, msg.ChatID, msg.SenderType, msg.Text).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return storeErr("insert message", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, msg.ChatID); err != nil {
		return storeErr("touch chat", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit message creation", err)
	}
	return nil
}

func (r *postgresChatRepository) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return nil, 0, storeErr("count messages", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, seq, sender_type, text, created_at, read_at
         FROM messages WHERE chat_id = $1
         ORDER BY seq ASC
         LIMIT $2 OFFSET $3`, chatID, limit, offset)
	if err != nil {
		return nil, 0, storeErr("list messages", err)
	}
	defer rows.Close()

	var messages []*entity.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, storeErr("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr("list messages", err)
	}
	return messages, total, nil
}

func scanMessage(row interface{ Scan(...any) error }) (*entity.Message, error) {
	var (
		msg    entity.Message
		readAt sql.NullTime
	)
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.Seq, &msg.SenderType, &msg.Text,
		&msg.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	if readAt.Valid {
		msg.ReadAt = &readAt.Time
	}
	return &msg, nil
}

func (r *postgresChatRepository) LatestMessages(ctx context.Context, chatIDs []string) (map[string]*entity.Message, error) {
	result := make(map[string]*entity.Message)
	if len(chatIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (chat_id) id, chat_id, seq, sender_type, text, created_at, read_at
         FROM messages WHERE chat_id::text = ANY($1)
         ORDER BY chat_id, seq DESC`, chatIDs)
	if err != nil {
		return nil, storeErr("latest messages", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, storeErr("scan message", err)
		}
		result[msg.ChatID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("latest messages", err)
	}
	return result, nil
}

func (r *postgresChatRepository) CountUnread(ctx context.Context, chatID string, sender entity.SenderType) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND sender_type = $2 AND read_at IS NULL`,
		chatID, sender).Scan(&count)
	if err != nil {
		return 0, storeErr("count unread", err)
	}
	return count, nil
}

func (r *postgresChatRepository) MarkRead(ctx context.Context, chatID string, sender entity.SenderType, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_at = $3 WHERE chat_id = $1 AND sender_type = $2 AND read_at IS NULL`,
		chatID, sender, at)
	if err != nil {
		return 0, storeErr("mark read", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("mark read", err)
	}
	return affected, nil
}
