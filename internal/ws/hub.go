package ws

import (
	"context"
	"encoding/json"
	"log"

	"peerchat/internal/changefeed"
	"peerchat/internal/conversation"
	"peerchat/internal/message"
	"peerchat/internal/profile"
	"peerchat/internal/typing"
)

type roomRequest struct {
	client         *Client
	conversationID string
}

type sentNotice struct {
	userID         string
	conversationID string
}

type logSnapshot struct {
	conversationID string
	msgs           []message.Message
}

type dirSnapshot struct {
	userID  string
	entries []conversation.Entry
}

// frame is what the hub pushes to clients. Exactly one of the payload
// fields is set, selected by Type.
type frame struct {
	Type           string               `json:"type"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Messages       []message.Message    `json:"messages,omitempty"`
	Conversations  []conversation.Entry `json:"conversations,omitempty"`
	UserIDs        []string             `json:"user_ids,omitempty"`
	Profile        json.RawMessage      `json:"profile,omitempty"`
}

// Hub routes change-feed activity to connected clients. It owns all the
// session state: which sockets belong to which user, which sessions joined
// which conversation, one live message log and typing set per open
// conversation, and one directory view per connected user. The run loop is
// the only goroutine touching those maps.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	join        chan roomRequest
	leave       chan roomRequest
	messageSent chan sentNotice
	logUpdates  chan logSnapshot
	dirUpdates  chan dirSnapshot

	clients     map[*Client]bool
	userClients map[string]map[*Client]bool
	rooms       map[string]map[*Client]bool
	logs        map[string]*message.LiveLog
	typingSets  map[string]*typing.Set
	directories map[string]*conversation.Directory

	ctx           context.Context
	feed          *changefeed.Feed
	conversations *conversation.Repository
	messages      *message.Repository
	typing        *typing.Coordinator
	presence      *profile.Presence
}

func NewHub(feed *changefeed.Feed, conversations *conversation.Repository, messages *message.Repository, typingCoord *typing.Coordinator, presence *profile.Presence) *Hub {
	return &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		join:        make(chan roomRequest),
		leave:       make(chan roomRequest),
		messageSent: make(chan sentNotice, 16),
		logUpdates:  make(chan logSnapshot, 16),
		dirUpdates:  make(chan dirSnapshot, 16),

		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		logs:        make(map[string]*message.LiveLog),
		typingSets:  make(map[string]*typing.Set),
		directories: make(map[string]*conversation.Directory),

		ctx:           context.Background(),
		feed:          feed,
		conversations: conversations,
		messages:      messages,
		typing:        typingCoord,
		presence:      presence,
	}
}

// MessageSent tells the hub a user's message committed, so their typing
// burst in that conversation must end now. Satisfies message.TypingNotifier.
func (h *Hub) MessageSent(userID, conversationID string) {
	h.messageSent <- sentNotice{userID: userID, conversationID: conversationID}
}

// setTyping is the SetFunc handed to every debouncer.
func (h *Hub) setTyping(conversationID, userID string, isTyping bool) {
	h.typing.SetTyping(h.ctx, conversationID, userID, isTyping)
}

// Run is the hub's event loop. It must run in its own goroutine.
func (h *Hub) Run() {
	events := h.feed.Subscribe("typing_indicators", "profiles")
	defer events.Close()

	for {
		select {
		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case req := <-h.join:
			h.joinRoom(req.client, req.conversationID)

		case req := <-h.leave:
			h.leaveRoom(req.client, req.conversationID)

		case n := <-h.messageSent:
			for c := range h.userClients[n.userID] {
				// Each stop issues a best-effort store write; keep it off
				// the loop.
				go c.forceTypingStop(n.conversationID)
			}

		case snap := <-h.logUpdates:
			h.pushLog(snap)

		case snap := <-h.dirUpdates:
			h.pushDirectory(snap)

		case ev, ok := <-events.C:
			if !ok {
				return
			}
			h.handleEvent(ev)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c] = true

	sessions := h.userClients[c.UserID]
	firstSession := len(sessions) == 0
	if sessions == nil {
		sessions = make(map[*Client]bool)
		h.userClients[c.UserID] = sessions
	}
	sessions[c] = true

	if firstSession {
		go h.presence.SetOnline(h.ctx, c.UserID, true)

		dir := conversation.NewDirectory(c.UserID, h.conversations.ListForUser, func(entries []conversation.Entry) {
			h.dirUpdates <- dirSnapshot{userID: c.UserID, entries: entries}
		})
		h.directories[c.UserID] = dir
		dir.Watch(h.ctx, h.feed)
	} else if dir := h.directories[c.UserID]; dir != nil {
		h.trySend(c, mustFrame(frame{Type: "conversations", Conversations: dir.Entries()}))
	}
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	for conversationID, room := range h.rooms {
		if room[c] {
			delete(room, c)
			h.maybeCloseRoom(conversationID)
		}
	}

	sessions := h.userClients[c.UserID]
	delete(sessions, c)
	if len(sessions) == 0 {
		delete(h.userClients, c.UserID)
		if dir := h.directories[c.UserID]; dir != nil {
			dir.Close()
			delete(h.directories, c.UserID)
		}
		go h.presence.SetOnline(h.ctx, c.UserID, false)
	}

	go c.stopDebouncers()
}

func (h *Hub) joinRoom(c *Client, conversationID string) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[conversationID] = room
	}
	room[c] = true

	if h.logs[conversationID] == nil {
		l := message.NewLiveLog(conversationID, h.messages.FetchAll, func(msgs []message.Message) {
			h.logUpdates <- logSnapshot{conversationID: conversationID, msgs: msgs}
		})
		h.logs[conversationID] = l
		set := typing.NewSet()
		h.typingSets[conversationID] = set
		l.Watch(h.ctx, h.feed)
		// The messages snapshot arrives via the log's initial refresh;
		// the typing snapshot has no refresh path, send it here.
		h.trySend(c, mustFrame(frame{
			Type:           "typing",
			ConversationID: conversationID,
			UserIDs:        set.Typing(c.UserID),
		}))
	} else {
		h.trySend(c, mustFrame(frame{
			Type:           "messages",
			ConversationID: conversationID,
			Messages:       h.logs[conversationID].Messages(),
		}))
		h.trySend(c, mustFrame(frame{
			Type:           "typing",
			ConversationID: conversationID,
			UserIDs:        h.typingSets[conversationID].Typing(c.UserID),
		}))
	}
}

func (h *Hub) leaveRoom(c *Client, conversationID string) {
	room := h.rooms[conversationID]
	if room == nil || !room[c] {
		return
	}
	delete(room, c)
	h.maybeCloseRoom(conversationID)
}

func (h *Hub) maybeCloseRoom(conversationID string) {
	if len(h.rooms[conversationID]) > 0 {
		return
	}
	delete(h.rooms, conversationID)
	if l := h.logs[conversationID]; l != nil {
		l.Close()
		delete(h.logs, conversationID)
	}
	delete(h.typingSets, conversationID)
}

func (h *Hub) pushLog(snap logSnapshot) {
	payload := mustFrame(frame{
		Type:           "messages",
		ConversationID: snap.conversationID,
		Messages:       snap.msgs,
	})
	for c := range h.rooms[snap.conversationID] {
		h.trySend(c, payload)
	}
}

func (h *Hub) pushDirectory(snap dirSnapshot) {
	payload := mustFrame(frame{Type: "conversations", Conversations: snap.entries})
	for c := range h.userClients[snap.userID] {
		h.trySend(c, payload)
	}
}

func (h *Hub) handleEvent(ev changefeed.Event) {
	switch ev.Table {
	case "typing_indicators":
		var ind typing.Indicator
		if err := json.Unmarshal(ev.Row, &ind); err != nil {
			log.Printf("ws: bad typing event: %v", err)
			return
		}
		set := h.typingSets[ind.ConversationID]
		if set == nil {
			return
		}
		set.Observe(ind)
		// The rendered set differs per viewer: your own id never shows.
		for c := range h.rooms[ind.ConversationID] {
			h.trySend(c, mustFrame(frame{
				Type:           "typing",
				ConversationID: ind.ConversationID,
				UserIDs:        set.Typing(c.UserID),
			}))
		}

	case "profiles":
		payload := mustFrame(frame{Type: "profile", Profile: ev.Row})
		for c := range h.clients {
			h.trySend(c, payload)
		}
	}
}

// trySend queues a payload for one client, dropping the whole session if
// its buffer is full rather than letting one slow reader stall the loop.
func (h *Hub) trySend(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.removeClient(c)
	}
}

func mustFrame(f frame) []byte {
	payload, err := json.Marshal(f)
	if err != nil {
		log.Printf("ws: marshal frame: %v", err)
		return []byte("{}")
	}
	return payload
}
