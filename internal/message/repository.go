package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"peerchat/internal/changefeed"
)

var (
	ErrEmptyContent = errors.New("message: content is empty")
	ErrNotAMember   = errors.New("message: sender is not a participant")
	ErrInvalidID    = errors.New("message: invalid id")
)

type Repository struct {
	db   *sql.DB
	feed *changefeed.Feed
}

// NewRepository wires the message log. A nil feed disables change
// notifications; tests use that.
func NewRepository(db *sql.DB, feed *changefeed.Feed) *Repository {
	return &Repository{db: db, feed: feed}
}

// FetchAll returns the conversation's full log, ascending by created_at
// with insertion order (seq) breaking ties.
func (r *Repository) FetchAll(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id::text, conversation_id::text, sender_id::text, content, read_at, created_at, updated_at
		FROM messages
		WHERE conversation_id = $1::uuid
		ORDER BY created_at, seq
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("message: fetch: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.ReadAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Send appends a message and updates the owning conversation's denormalized
// preview in one transaction, so any reader of the conversation after Send
// returns sees the new preview. Content is rejected when it trims to empty,
// and the sender must be a participant; both checks happen before anything
// is written.
func (r *Repository) Send(ctx context.Context, conversationID, senderID, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return "", ErrInvalidID
	}
	if _, err := uuid.Parse(senderID); err != nil {
		return "", ErrInvalidID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("message: begin: %w", err)
	}
	defer tx.Rollback()

	var member bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(
		    SELECT 1 FROM conversations
		    WHERE id = $1::uuid AND (user1_id = $2::uuid OR user2_id = $2::uuid))`,
		conversationID, senderID).Scan(&member)
	if err != nil {
		return "", fmt.Errorf("message: membership: %w", err)
	}
	if !member {
		return "", ErrNotAMember
	}

	var id string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content)
		 VALUES ($1::uuid, $2::uuid, $3)
		 RETURNING id::text, created_at`,
		conversationID, senderID, content).Scan(&id, &createdAt)
	if err != nil {
		return "", fmt.Errorf("message: insert: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations
		 SET last_message_content = $2, last_message_time = $3, updated_at = $3
		 WHERE id = $1::uuid`,
		conversationID, content, createdAt)
	if err != nil {
		return "", fmt.Errorf("message: update preview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("message: commit: %w", err)
	}

	r.publish(ctx, changefeed.EventInsert, "messages", map[string]string{
		"id": id, "conversation_id": conversationID, "sender_id": senderID,
	}, conversationID)
	r.publish(ctx, changefeed.EventUpdate, "conversations", map[string]string{
		"id": conversationID,
	}, conversationID)

	return id, nil
}

// MarkRead sets read_at on the message unless the reader authored it. The
// update only touches conversations the reader belongs to; marking your own
// message, a message already read, or a message in someone else's
// conversation is a no-op.
func (r *Repository) MarkRead(ctx context.Context, messageID, readerID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return ErrInvalidID
	}
	if _, err := uuid.Parse(readerID); err != nil {
		return ErrInvalidID
	}

	var conversationID string
	err := r.db.QueryRowContext(ctx,
		`UPDATE messages m
		 SET read_at = now(), updated_at = now()
		 FROM conversations c
		 WHERE m.id = $1::uuid
		   AND c.id = m.conversation_id
		   AND (c.user1_id = $2::uuid OR c.user2_id = $2::uuid)
		   AND m.sender_id <> $2::uuid
		   AND m.read_at IS NULL
		 RETURNING m.conversation_id::text`,
		messageID, readerID).Scan(&conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("message: mark read: %w", err)
	}

	r.publish(ctx, changefeed.EventUpdate, "messages", map[string]string{
		"id": messageID, "conversation_id": conversationID,
	}, conversationID)
	return nil
}

func (r *Repository) publish(ctx context.Context, typ changefeed.EventType, table string, row map[string]string, filter string) {
	if r.feed == nil {
		return
	}
	payload, _ := json.Marshal(row)
	ev := changefeed.Event{Type: typ, Table: table, Row: payload}
	if err := r.feed.Publish(ctx, ev, filter); err != nil {
		log.Printf("message: publish %s %s: %v", typ, table, err)
	}
}
