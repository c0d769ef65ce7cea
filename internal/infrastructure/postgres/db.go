package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

// AutoMigrate creates the chat tables. The pets table belongs to the listing
// subsystem; it is created here only so local development works against an
// empty database.
func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chats (
            id UUID PRIMARY KEY,
            pet_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            owner_id TEXT NOT NULL,
            status VARCHAR(10) NOT NULL CHECK (status IN ('active', 'archived')) DEFAULT 'active',
            archived_at TIMESTAMPTZ,
            archived_by TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		// Resolves concurrent create races for the same triple: the loser of
		// the insert re-reads and returns the winner's row.
		`CREATE UNIQUE INDEX IF NOT EXISTS chats_active_triple_idx
            ON chats (pet_id, user_id, owner_id) WHERE status = 'active'`,

		`CREATE INDEX IF NOT EXISTS chats_user_active_idx ON chats (user_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS chats_owner_active_idx ON chats (owner_id) WHERE status = 'active'`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            seq BIGINT NOT NULL,
            sender_type VARCHAR(10) NOT NULL CHECK (sender_type IN ('user', 'owner')),
            text TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            read_at TIMESTAMPTZ,
            UNIQUE (chat_id, seq)
        )`,

		`CREATE INDEX IF NOT EXISTS messages_unread_idx
            ON messages (chat_id, sender_type) WHERE read_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS pets (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            breed TEXT NOT NULL DEFAULT '',
            type VARCHAR(10) NOT NULL CHECK (type IN ('lost', 'found')),
            status VARCHAR(10) NOT NULL CHECK (status IN ('active', 'found', 'archived')) DEFAULT 'active'
        )`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
