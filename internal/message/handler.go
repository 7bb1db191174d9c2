package message

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	myMiddleware "peerchat/internal/middleware"
)

// Membership is what we need from the conversation service to authorize
// history reads without importing it.
type Membership interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// TypingNotifier lets a successful send cancel the sender's typing state
// mid-burst. Implemented by the websocket hub.
type TypingNotifier interface {
	MessageSent(userID, conversationID string)
}

type Handler struct {
	repo       *Repository
	membership Membership
	typing     TypingNotifier
}

func NewHandler(repo *Repository, membership Membership, typing TypingNotifier) *Handler {
	return &Handler{repo: repo, membership: membership, typing: typing}
}

// History handles GET /api/messages?conversation_id=.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	member, err := h.membership.IsParticipant(r.Context(), conversationID, userID)
	if err != nil {
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "not a participant", http.StatusForbidden)
		return
	}

	msgs, err := h.repo.FetchAll(r.Context(), conversationID)
	if err != nil {
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// Send handles POST /api/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.repo.Send(r.Context(), req.ConversationID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInvalidID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotAMember):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, "could not send message", http.StatusInternalServerError)
		}
		return
	}

	// A send ends the sender's typing burst immediately.
	if h.typing != nil {
		h.typing.MessageSent(userID, req.ConversationID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// MarkRead handles POST /api/messages/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID := chi.URLParam(r, "id")
	if err := h.repo.MarkRead(r.Context(), messageID, userID); err != nil {
		if errors.Is(err, ErrInvalidID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "could not mark as read", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
