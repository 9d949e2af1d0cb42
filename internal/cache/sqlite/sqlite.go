package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/asima2006/fiora-sync/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	linkman_id   TEXT NOT NULL,
	message_id   TEXT NOT NULL,
	type         TEXT NOT NULL,
	content      TEXT NOT NULL,
	from_id      TEXT NOT NULL,
	from_name    TEXT NOT NULL,
	from_avatar  TEXT NOT NULL DEFAULT '',
	from_tag     TEXT NOT NULL DEFAULT '',
	create_time  INTEGER NOT NULL,
	deleted      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (linkman_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_linkman_time
	ON messages (linkman_id, create_time);
`

// Cache implements cache.History on SQLite.
type Cache struct {
	db *sql.DB
}

// New opens (and if needed creates) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveMessages upserts messages for a linkman. Placeholder entries still in
// flight are skipped; only acknowledged messages are worth mirroring.
func (c *Cache) SaveMessages(ctx context.Context, linkmanID string, msgs []store.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO messages
			(linkman_id, message_id, type, content, from_id, from_name, from_avatar, from_tag, create_time, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (linkman_id, message_id) DO UPDATE SET
			content = excluded.content,
			deleted = excluded.deleted
	`
	for _, m := range msgs {
		if m.Loading || m.Failed {
			continue
		}
		deleted := 0
		if m.Deleted {
			deleted = 1
		}
		if _, err := tx.ExecContext(ctx, query,
			linkmanID, m.ID, string(m.Type), m.Content,
			m.From.ID, m.From.Username, m.From.Avatar, m.From.Tag,
			m.CreateTime.UnixMilli(), deleted,
		); err != nil {
			return fmt.Errorf("upsert message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadRecent returns up to limit newest messages for a linkman, oldest
// first.
func (c *Cache) LoadRecent(ctx context.Context, linkmanID string, limit int) ([]store.Message, error) {
	query := `
		SELECT message_id, type, content, from_id, from_name, from_avatar, from_tag, create_time, deleted
		FROM messages
		WHERE linkman_id = ?
		ORDER BY create_time DESC
		LIMIT ?
	`
	rows, err := c.db.QueryContext(ctx, query, linkmanID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		var typ string
		var createMillis int64
		var deleted int
		if err := rows.Scan(&m.ID, &typ, &m.Content,
			&m.From.ID, &m.From.Username, &m.From.Avatar, &m.From.Tag,
			&createMillis, &deleted); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = store.MessageType(typ)
		m.CreateTime = time.UnixMilli(createMillis)
		m.Deleted = deleted != 0
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse into display order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteMessage removes one cached message.
func (c *Cache) DeleteMessage(ctx context.Context, linkmanID, messageID string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM messages WHERE linkman_id = ? AND message_id = ?`,
		linkmanID, messageID,
	); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
