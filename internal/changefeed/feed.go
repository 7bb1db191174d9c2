// Package changefeed delivers "something changed, re-derive state" signals
// over Redis pub/sub. Notifications are at-least-once and carry no ordering
// guarantee relative to concurrent writers; consumers must treat the payload
// as a hint and re-fetch the truth from the store.
package changefeed

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event describes a change to one row of a table. Row holds whatever the
// publisher chose to include; it is sufficient for routing but not for
// reconstructing state.
type Event struct {
	Type  EventType       `json:"type"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row,omitempty"`
}

type Feed struct {
	redis *redis.Client
}

func New(redisClient *redis.Client) *Feed {
	return &Feed{redis: redisClient}
}

func channelName(table, filter string) string {
	if filter == "" {
		return "changes:" + table
	}
	return "changes:" + table + ":" + filter
}

// Publish fans the event out on the table's channel and, when filter is
// non-empty, on the filtered channel as well, so both broad subscribers
// (directory views) and scoped subscribers (one open conversation) see it.
func (f *Feed) Publish(ctx context.Context, ev Event, filter string) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := f.redis.Publish(ctx, channelName(ev.Table, ""), payload).Err(); err != nil {
		return err
	}
	if filter != "" {
		if err := f.redis.Publish(ctx, channelName(ev.Table, filter), payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Subscription is an open change-notification channel. Close it when the
// consumer goes away or the receive goroutine leaks.
type Subscription struct {
	pubsub *redis.PubSub

	// C delivers decoded events. It is closed when the subscription closes.
	C <-chan Event
}

// Subscribe opens a channel covering every change to the named tables.
func (f *Feed) Subscribe(tables ...string) *Subscription {
	channels := make([]string, len(tables))
	for i, t := range tables {
		channels[i] = channelName(t, "")
	}
	return f.subscribe(channels)
}

// SubscribeFiltered opens a channel scoped to one filter value, typically a
// conversation id.
func (f *Feed) SubscribeFiltered(table, filter string) *Subscription {
	return f.subscribe([]string{channelName(table, filter)})
}

func (f *Feed) subscribe(channels []string) *Subscription {
	pubsub := f.redis.Subscribe(context.Background(), channels...)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("changefeed: dropping malformed event on %s: %v", msg.Channel, err)
				continue
			}
			events <- ev
		}
	}()

	return &Subscription{pubsub: pubsub, C: events}
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
