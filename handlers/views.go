package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/services"
)

// ViewHandler serves group resolution and saved views.
type ViewHandler struct {
	views *services.ViewService
}

func NewViewHandler(vs *services.ViewService) *ViewHandler {
	return &ViewHandler{views: vs}
}

// ResolveGroups computes the groups of an ad hoc view and the first page
// of each.
func (h *ViewHandler) ResolveGroups(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var q services.ViewQuery
	if !decode(w, r, &q) {
		return
	}
	q.ListID = mux.Vars(r)["id"]
	res, err := h.views.Resolve(r.Context(), id.WorkspaceID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryView reads a view from query parameters: either a saved view id or
// the ad hoc fields.
func queryView(r *http.Request) (services.ViewQuery, error) {
	q := r.URL.Query()
	vq := services.ViewQuery{
		ViewID:      q.Get("view"),
		ListID:      mux.Vars(r)["id"],
		GroupBy:     models.GroupBy{Type: models.GroupByType(q.Get("groupBy")), FieldID: q.Get("groupField")},
		SortCardsBy: models.SortOption{Field: q.Get("sort"), Direction: models.SortDirection(q.Get("direction"))},
	}
	var err error
	if raw := q.Get("hideCompleted"); raw != "" {
		if vq.HideCompleted, err = strconv.ParseBool(raw); err != nil {
			return vq, err
		}
	}
	if raw := q.Get("hideChildren"); raw != "" {
		if vq.HideChildren, err = strconv.ParseBool(raw); err != nil {
			return vq, err
		}
	}
	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &vq.Filters); err != nil {
			return vq, err
		}
	}
	return vq, nil
}

// GroupCards returns one more page of one group.
func (h *ViewHandler) GroupCards(w http.ResponseWriter, r *http.Request, id services.Identity) {
	vq, err := queryView(r)
	if err != nil {
		http.Error(w, "Invalid view parameters", http.StatusBadRequest)
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

	def, p, err := h.views.FetchGroup(r.Context(), id.WorkspaceID, vq, mux.Vars(r)["key"], page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group": def,
		"page":  p,
	})
}

func (h *ViewHandler) ListViews(w http.ResponseWriter, r *http.Request, id services.Identity) {
	vs, err := h.views.List(r.Context(), id.WorkspaceID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (h *ViewHandler) CreateView(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var v models.View
	if !decode(w, r, &v) {
		return
	}
	created, err := h.views.Create(r.Context(), id.WorkspaceID, mux.Vars(r)["id"], v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request, id services.Identity) {
	v, err := h.views.Get(r.Context(), id.WorkspaceID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ViewHandler) UpdateView(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var v models.View
	if !decode(w, r, &v) {
		return
	}
	updated, err := h.views.Update(r.Context(), id.WorkspaceID, mux.Vars(r)["id"], v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ViewHandler) DeleteView(w http.ResponseWriter, r *http.Request, id services.Identity) {
	if err := h.views.Delete(r.Context(), id.WorkspaceID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ViewGroups resolves a saved view.
func (h *ViewHandler) ViewGroups(w http.ResponseWriter, r *http.Request, id services.Identity) {
	pageSize, err := intQuery(r, "pageSize", 0)
	if err != nil {
		http.Error(w, "pageSize must be a number", http.StatusBadRequest)
		return
	}
	res, err := h.views.Resolve(r.Context(), id.WorkspaceID, services.ViewQuery{ViewID: mux.Vars(r)["id"], PageSize: pageSize})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
