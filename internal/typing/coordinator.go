// Package typing manages the ephemeral "user is composing" signal. The
// state is not part of message history: rows are overwritten in place,
// keyed by (conversation, user), and entries decay after a short TTL so a
// client that vanishes mid-burst cannot leave the indicator stuck.
package typing

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"peerchat/internal/changefeed"
)

// Indicator is the ephemeral typing state for one user in one conversation.
type Indicator struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	IsTyping       bool      `json:"is_typing"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Coordinator persists typing transitions. Writes are best-effort and
// non-critical: failures are logged, never surfaced, and nothing retries.
type Coordinator struct {
	db   *sql.DB
	feed *changefeed.Feed
}

func NewCoordinator(db *sql.DB, feed *changefeed.Feed) *Coordinator {
	return &Coordinator{db: db, feed: feed}
}

// SetTyping upserts the (conversation, user) row and announces the change.
func (c *Coordinator) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO typing_indicators (conversation_id, user_id, is_typing, updated_at)
		VALUES ($1::uuid, $2::uuid, $3, now())
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET is_typing = EXCLUDED.is_typing, updated_at = now()
	`, conversationID, userID, isTyping)
	if err != nil {
		log.Printf("typing: upsert %s/%s: %v", conversationID, userID, err)
		return
	}
	if c.feed == nil {
		return
	}

	row, _ := json.Marshal(Indicator{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
		UpdatedAt:      time.Now(),
	})
	ev := changefeed.Event{Type: changefeed.EventUpdate, Table: "typing_indicators", Row: row}
	if err := c.feed.Publish(ctx, ev, conversationID); err != nil {
		log.Printf("typing: publish %s/%s: %v", conversationID, userID, err)
	}
}
