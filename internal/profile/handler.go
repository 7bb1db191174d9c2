package profile

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Search handles GET /api/users/search?q= and returns every match.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	profiles, err := h.repo.Search(r.Context(), query)
	if err != nil {
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profiles)
}

// Find handles GET /api/users/find?q= and resolves exactly one profile,
// used by the new-chat flow to pick a recipient.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	p, err := h.repo.Find(r.Context(), term)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}
