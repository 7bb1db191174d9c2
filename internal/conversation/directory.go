package conversation

import (
	"context"
	"log"
	"sync"

	"peerchat/internal/changefeed"
	"peerchat/internal/live"
	"peerchat/internal/profile"
)

// ListFunc fetches the full directory for a user. The live Directory only
// ever replaces its view wholesale, so any notification, even a duplicated
// or reordered one, converges on the same state.
type ListFunc func(ctx context.Context, userID string) ([]Entry, error)

// Directory is the signed-in user's materialized conversation list. It
// subscribes to change notifications on both conversations and messages
// (a new message anywhere reorders the directory and changes previews) and
// re-runs the full listing on every event.
type Directory struct {
	userID   string
	list     ListFunc
	onUpdate func([]Entry)

	seq live.Sequencer

	mu      sync.Mutex
	entries []Entry

	subs   []*changefeed.Subscription
	closed chan struct{}
}

// NewDirectory builds a directory view without wiring it to a feed; call
// Watch to go live, or drive Refresh directly in tests.
func NewDirectory(userID string, list ListFunc, onUpdate func([]Entry)) *Directory {
	return &Directory{
		userID:   userID,
		list:     list,
		onUpdate: onUpdate,
		closed:   make(chan struct{}),
	}
}

// Watch subscribes to the conversations and messages feeds and keeps the
// view fresh until Close. It performs an initial refresh immediately. A nil
// feed disables change notifications; tests use that.
func (d *Directory) Watch(ctx context.Context, feed *changefeed.Feed) {
	if feed != nil {
		sub := feed.Subscribe("conversations", "messages")
		d.subs = append(d.subs, sub)

		go func() {
			for range sub.C {
				d.Refresh(ctx)
			}
		}()
	}

	go d.Refresh(ctx)
}

// Refresh re-fetches the whole directory and installs the result unless a
// later-issued fetch already landed.
func (d *Directory) Refresh(ctx context.Context) {
	seq := d.seq.Next()

	entries, err := d.list(ctx, d.userID)
	if err != nil {
		log.Printf("directory: refresh for %s: %v", d.userID, err)
		return
	}

	d.mu.Lock()
	if !d.seq.Apply(seq) {
		d.mu.Unlock()
		return
	}
	d.entries = entries
	d.mu.Unlock()

	if d.onUpdate != nil {
		d.onUpdate(entries)
	}
}

// Entries returns the current view.
func (d *Directory) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// ResolveCounterpart picks the counterpart profile for a conversation,
// preferring the embedded profile from the current view and falling back
// to the supplied cache when the conversation is not in view yet.
func (d *Directory) ResolveCounterpart(c Conversation, cache map[string]profile.Profile) (profile.Profile, bool) {
	d.mu.Lock()
	for _, e := range d.entries {
		if e.ID == c.ID {
			d.mu.Unlock()
			return e.Counterpart, true
		}
	}
	d.mu.Unlock()

	p, ok := cache[c.CounterpartID(d.userID)]
	return p, ok
}

func (d *Directory) Close() {
	select {
	case <-d.closed:
		return
	default:
		close(d.closed)
	}
	for _, sub := range d.subs {
		sub.Close()
	}
}
