package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	myMiddleware "peerchat/internal/middleware"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type startRequest struct {
	OtherID string `json:"other_id"`
}

// Start handles POST /api/conversations: find-or-create the thread between
// the signed-in user and other_id.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.repo.Resolve(r.Context(), userID, req.OtherID)
	if err != nil {
		if errors.Is(err, ErrSelfConversation) || errors.Is(err, ErrInvalidUserID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "could not start conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"conversation_id": id})
}

// List handles GET /api/conversations: the signed-in user's directory.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.repo.ListForUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "could not list conversations", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
