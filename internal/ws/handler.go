package ws

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	myMiddleware "peerchat/internal/middleware"
	"peerchat/internal/typing"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin is enforced by the CORS layer in front.
	},
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWs upgrades an authenticated request and attaches the session to
// the hub.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	username, ok2 := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || !ok2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		ID:         uuid.NewString(),
		UserID:     userID,
		Username:   username,
		hub:        h.hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		debouncers: make(map[string]*typing.Debouncer),
	}
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
