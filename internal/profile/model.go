package profile

import "time"

// Profile is the identity record the rest of the core hangs off. Presence
// fields (is_online, last_seen) are mutated by heartbeats and the websocket
// lifecycle; everything else changes only through account management.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Never serialized.
	PasswordHash string `json:"-"`
}
