package message

import (
	"context"
	"log"
	"sync"

	"peerchat/internal/changefeed"
	"peerchat/internal/live"
)

// Fetcher loads a conversation's full ordered log.
type Fetcher func(ctx context.Context, conversationID string) ([]Message, error)

// LiveLog is the materialized in-memory view of one open conversation. On
// every change notification it re-fetches the entire log and swaps the view
// wholesale. A full replace is idempotent, so duplicate or out-of-order
// notifications can never duplicate entries or corrupt ordering. Responses
// from fetches that were overtaken by a newer one are discarded.
type LiveLog struct {
	conversationID string
	fetch          Fetcher
	onUpdate       func([]Message)

	seq live.Sequencer

	mu   sync.Mutex
	msgs []Message

	sub *changefeed.Subscription
}

// NewLiveLog builds the view without wiring it to a feed; call Watch to go
// live, or drive Refresh directly in tests.
func NewLiveLog(conversationID string, fetch Fetcher, onUpdate func([]Message)) *LiveLog {
	return &LiveLog{
		conversationID: conversationID,
		fetch:          fetch,
		onUpdate:       onUpdate,
	}
}

// Watch subscribes to insert/update notifications scoped to this
// conversation and refreshes on each one, starting with an immediate
// initial load. A nil feed disables change notifications; tests use that.
func (l *LiveLog) Watch(ctx context.Context, feed *changefeed.Feed) {
	if feed != nil {
		l.sub = feed.SubscribeFiltered("messages", l.conversationID)
		go func() {
			for range l.sub.C {
				l.Refresh(ctx)
			}
		}()
	}

	go l.Refresh(ctx)
}

// Refresh re-fetches the whole log and installs it unless a later-issued
// fetch already landed.
func (l *LiveLog) Refresh(ctx context.Context) {
	seq := l.seq.Next()

	msgs, err := l.fetch(ctx, l.conversationID)
	if err != nil {
		log.Printf("livelog: refresh %s: %v", l.conversationID, err)
		return
	}

	l.mu.Lock()
	if !l.seq.Apply(seq) {
		l.mu.Unlock()
		return
	}
	l.msgs = msgs
	l.mu.Unlock()

	if l.onUpdate != nil {
		l.onUpdate(msgs)
	}
}

// Messages returns the current view.
func (l *LiveLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *LiveLog) Close() {
	if l.sub != nil {
		l.sub.Close()
	}
}
