package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/services"
)

// CardHandler serves card mutations and the ungrouped card listing.
type CardHandler struct {
	cards *services.CardService
	views *services.ViewService
}

func NewCardHandler(cs *services.CardService, vs *services.ViewService) *CardHandler {
	return &CardHandler{cards: cs, views: vs}
}

func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var in services.CardInput
	if !decode(w, r, &in) {
		return
	}
	lc, err := h.cards.Create(r.Context(), id.WorkspaceID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lc)
}

func (h *CardHandler) UpdateCard(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var up services.CardUpdate
	if !decode(w, r, &up) {
		return
	}
	c, err := h.cards.Update(r.Context(), id.WorkspaceID, mux.Vars(r)["id"], up)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CardHandler) MoveCard(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var req struct {
		ListID  string  `json:"listId"`
		StageID *string `json:"stageId"`
	}
	if !decode(w, r, &req) {
		return
	}
	m, err := h.cards.Move(r.Context(), id.WorkspaceID, mux.Vars(r)["id"], req.ListID, req.StageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request, id services.Identity) {
	if err := h.cards.Delete(r.Context(), id.WorkspaceID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCards returns one page of a list's cards without grouping.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request, id services.Identity) {
	q := r.URL.Query()
	listID := q.Get("listId")
	if listID == "" {
		http.Error(w, "listId is required", http.StatusBadRequest)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		http.Error(w, "page must be a number", http.StatusBadRequest)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		http.Error(w, "limit must be a number", http.StatusBadRequest)
		return
	}

	var f models.Filters
	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			http.Error(w, "Invalid filters", http.StatusBadRequest)
			return
		}
	}
	sort := models.SortOption{Field: q.Get("sort"), Direction: models.SortDirection(q.Get("direction"))}

	p, err := h.views.FetchCards(r.Context(), id.WorkspaceID, listID, f, sort, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
