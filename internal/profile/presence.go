package profile

import (
	"context"
	"encoding/json"
	"log"

	"peerchat/internal/changefeed"
)

// Presence applies online/offline transitions and announces them on the
// change feed. Updates are best-effort: a failed write is logged and
// dropped, never surfaced, because stale presence only degrades display.
type Presence struct {
	repo *Repository
	feed *changefeed.Feed
}

func NewPresence(repo *Repository, feed *changefeed.Feed) *Presence {
	return &Presence{repo: repo, feed: feed}
}

func (p *Presence) SetOnline(ctx context.Context, userID string, online bool) {
	if err := p.repo.SetPresence(ctx, userID, online); err != nil {
		log.Printf("presence: update for %s: %v", userID, err)
		return
	}
	if p.feed == nil {
		return
	}

	row, _ := json.Marshal(map[string]any{"id": userID, "is_online": online})
	ev := changefeed.Event{Type: changefeed.EventUpdate, Table: "profiles", Row: row}
	if err := p.feed.Publish(ctx, ev, ""); err != nil {
		log.Printf("presence: publish for %s: %v", userID, err)
	}
}
