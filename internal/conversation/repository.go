package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"peerchat/internal/changefeed"
	"peerchat/internal/profile"
)

var (
	ErrSelfConversation = errors.New("conversation: cannot start a conversation with yourself")
	ErrInvalidUserID    = errors.New("conversation: invalid user id")
)

type Repository struct {
	db   *sql.DB
	feed *changefeed.Feed
}

// NewRepository wires the resolver and directory queries. A nil feed
// disables change notifications; tests use that.
func NewRepository(db *sql.DB, feed *changefeed.Feed) *Repository {
	return &Repository{db: db, feed: feed}
}

// canonicalPair orders the two participant ids so the same unordered pair
// always maps to the same (user1, user2) tuple. Both ids must be in
// canonical lowercase form; only then does string order agree with the
// store's uuid byte order.
func canonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Resolve returns the id of the single conversation between the two users,
// creating it when absent. Resolution is order-independent and idempotent:
// resolve(a,b) == resolve(b,a), and concurrent resolvers for the same pair
// converge on one row because the insert is guarded by the canonical-pair
// unique constraint. The loser of a race re-reads the winner's row.
func (r *Repository) Resolve(ctx context.Context, userA, userB string) (string, error) {
	a, err := uuid.Parse(userA)
	if err != nil {
		return "", ErrInvalidUserID
	}
	b, err := uuid.Parse(userB)
	if err != nil {
		return "", ErrInvalidUserID
	}
	// uuid text is case-insensitive; equality and ordering must happen on
	// the canonical spelling, not on the caller's.
	if a == b {
		return "", ErrSelfConversation
	}

	first, second := canonicalPair(a.String(), b.String())

	var id string
	err = r.db.QueryRowContext(ctx,
		`SELECT id::text FROM conversations
		 WHERE (user1_id = $1::uuid AND user2_id = $2::uuid)
		    OR (user1_id = $2::uuid AND user2_id = $1::uuid)`,
		first, second).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("conversation: lookup: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO conversations (user1_id, user2_id) VALUES ($1::uuid, $2::uuid)
		 ON CONFLICT (user1_id, user2_id) DO NOTHING
		 RETURNING id::text`,
		first, second).Scan(&id)
	if err == nil {
		r.publishCreated(ctx, id, first, second)
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("conversation: create: %w", err)
	}

	// Lost the race: someone else inserted between our lookup and insert.
	err = r.db.QueryRowContext(ctx,
		`SELECT id::text FROM conversations WHERE user1_id = $1::uuid AND user2_id = $2::uuid`,
		first, second).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("conversation: lookup after conflict: %w", err)
	}
	return id, nil
}

func (r *Repository) publishCreated(ctx context.Context, id, user1, user2 string) {
	if r.feed == nil {
		return
	}
	row, _ := json.Marshal(map[string]string{"id": id, "user1_id": user1, "user2_id": user2})
	ev := changefeed.Event{Type: changefeed.EventInsert, Table: "conversations", Row: row}
	if err := r.feed.Publish(ctx, ev, id); err != nil {
		log.Printf("conversation: publish create %s: %v", id, err)
	}
}

// IsParticipant reports whether userID is one of the conversation's two
// participants.
func (r *Repository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		    SELECT 1 FROM conversations
		    WHERE id = $1::uuid AND (user1_id = $2::uuid OR user2_id = $2::uuid))`,
		conversationID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("conversation: membership: %w", err)
	}
	return ok, nil
}

// ListForUser returns the user's directory: every conversation they are in,
// joined with the counterpart's profile, newest activity first. Rows with
// no message yet sort after the rest, by updated_at.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id::text, c.user1_id::text, c.user2_id::text, c.created_at, c.updated_at,
		       c.last_message_content, c.last_message_time,
		       p.id::text, p.username, p.email, p.avatar_url, p.is_online, p.last_seen, p.created_at, p.updated_at
		FROM conversations c
		JOIN profiles p ON p.id = CASE WHEN c.user1_id = $1::uuid THEN c.user2_id ELSE c.user1_id END
		WHERE c.user1_id = $1::uuid OR c.user2_id = $1::uuid
		ORDER BY c.last_message_time DESC NULLS LAST, c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var p profile.Profile
		err := rows.Scan(
			&e.ID, &e.User1ID, &e.User2ID, &e.CreatedAt, &e.UpdatedAt,
			&e.LastMessageContent, &e.LastMessageTime,
			&p.ID, &p.Username, &p.Email, &p.AvatarURL, &p.IsOnline, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan: %w", err)
		}
		e.Counterpart = p
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
