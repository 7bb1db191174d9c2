package conversation

import (
	"time"

	"peerchat/internal/profile"
)

// Conversation is the unique durable thread between exactly two identities.
// The participant pair is unordered; storage keeps it canonicalized with the
// lexicographically lesser id in User1ID.
type Conversation struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Denormalized copy of the latest message for cheap listing.
	LastMessageContent *string    `json:"last_message_content,omitempty"`
	LastMessageTime    *time.Time `json:"last_message_time,omitempty"`
}

// CounterpartID returns the participant that is not userID. It returns an
// empty string when userID is not a participant at all.
func (c Conversation) CounterpartID(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	}
	return ""
}

// Entry is one row of a user's conversation directory: the conversation
// plus the other participant's profile.
type Entry struct {
	Conversation
	Counterpart profile.Profile `json:"counterpart"`
}
