package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/services"
)

// ListHandler serves lists, stages, card types and fields.
type ListHandler struct {
	lists *services.ListService
}

func NewListHandler(lists *services.ListService) *ListHandler {
	return &ListHandler{lists: lists}
}

func (h *ListHandler) CreateList(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var in services.ListInput
	if !decode(w, r, &in) {
		return
	}
	l, err := h.lists.Create(r.Context(), id.WorkspaceID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *ListHandler) GetList(w http.ResponseWriter, r *http.Request, id services.Identity) {
	l, err := h.lists.Get(r.Context(), id.WorkspaceID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *ListHandler) DeleteList(w http.ResponseWriter, r *http.Request, id services.Identity) {
	if err := h.lists.Delete(r.Context(), id.WorkspaceID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) AddStage(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var in services.StageInput
	if !decode(w, r, &in) {
		return
	}
	st, err := h.lists.AddStage(r.Context(), id.WorkspaceID, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *ListHandler) CreateCardType(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var req struct {
		Name   string        `json:"name"`
		Layout models.Layout `json:"layout"`
	}
	if !decode(w, r, &req) {
		return
	}
	ct, fields, err := h.lists.CreateCardType(r.Context(), id.WorkspaceID, req.Name, req.Layout)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"cardType": ct,
		"fields":   fields,
	})
}

// Fields lists the fields of one scope. Without a scope the caller's
// workspace is used.
func (h *ListHandler) Fields(w http.ResponseWriter, r *http.Request, id services.Identity) {
	q := r.URL.Query()
	scope := catalog.Scope{
		WorkspaceID: q.Get("workspaceId"),
		ListID:      q.Get("listId"),
		CardTypeID:  q.Get("cardTypeId"),
	}
	if scope == (catalog.Scope{}) {
		scope.WorkspaceID = id.WorkspaceID
	}
	fields, err := h.lists.Fields(r.Context(), id.WorkspaceID, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (h *ListHandler) CreateField(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var f models.Field
	if !decode(w, r, &f) {
		return
	}
	created, err := h.lists.CreateField(r.Context(), id.WorkspaceID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ListHandler) DeleteField(w http.ResponseWriter, r *http.Request, id services.Identity) {
	if err := h.lists.DeleteField(r.Context(), id.WorkspaceID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
