package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peerchat/internal/typing"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings with this period. Must be less than pongWait.
	maxMessageSize = 4096
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	ID       string
	UserID   string
	Username string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// One debouncer per conversation this session has typed in. Accessed
	// from the read pump and from the hub's send notifications.
	mu         sync.Mutex
	debouncers map[string]*typing.Debouncer
}

// inboundFrame is what clients send us: room management and keystrokes.
type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Input          string `json:"input,omitempty"`
}

func (c *Client) debouncer(conversationID string) *typing.Debouncer {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.debouncers[conversationID]
	if !ok {
		d = typing.NewDebouncer(conversationID, c.UserID, typing.DefaultIdle, c.hub.setTyping)
		c.debouncers[conversationID] = d
	}
	return d
}

// forceTypingStop ends the typing burst for one conversation, if this
// session had one going.
func (c *Client) forceTypingStop(conversationID string) {
	c.mu.Lock()
	d := c.debouncers[conversationID]
	c.mu.Unlock()
	if d != nil {
		d.MessageSent()
	}
}

// stopDebouncers flushes a final typing=false for any conversation still
// mid-burst. Called when the session goes away.
func (c *Client) stopDebouncers() {
	c.mu.Lock()
	ds := make([]*typing.Debouncer, 0, len(c.debouncers))
	for _, d := range c.debouncers {
		ds = append(ds, d)
	}
	c.mu.Unlock()
	for _, d := range ds {
		d.Stop()
	}
}

// ReadPump pumps frames from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}

		var f inboundFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Printf("ws: dropping malformed frame from %s: %v", c.UserID, err)
			continue
		}
		c.handleFrame(f)
	}
}

func (c *Client) handleFrame(f inboundFrame) {
	switch f.Type {
	case "join":
		// Membership is checked here, off the hub loop, so a slow query
		// can't stall every other session.
		ok, err := c.hub.conversations.IsParticipant(c.hub.ctx, f.ConversationID, c.UserID)
		if err != nil {
			log.Printf("ws: join check for %s: %v", c.UserID, err)
			return
		}
		if !ok {
			return
		}
		c.hub.join <- roomRequest{client: c, conversationID: f.ConversationID}
	case "leave":
		c.hub.leave <- roomRequest{client: c, conversationID: f.ConversationID}
	case "keystroke":
		c.debouncer(f.ConversationID).Keystroke(f.Input)
	case "stop":
		c.mu.Lock()
		d := c.debouncers[f.ConversationID]
		c.mu.Unlock()
		if d != nil {
			d.Stop()
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Flush anything else already queued in one write.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
