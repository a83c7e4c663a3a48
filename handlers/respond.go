package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/CrowderSoup/workboard/cards"
	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/database"
	"github.com/CrowderSoup/workboard/filters"
	"github.com/CrowderSoup/workboard/grouping"
	"github.com/CrowderSoup/workboard/services"
	"github.com/CrowderSoup/workboard/views"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return false
	}
	return true
}

var badRequest = []error{
	services.ErrInvalidView,
	services.ErrInvalidCard,
	services.ErrInvalidList,
	services.ErrParentCycle,
	services.ErrParentTooDeep,
	catalog.ErrInvalidField,
	catalog.ErrInvalidScope,
	catalog.ErrDuplicateTitleField,
	catalog.ErrUnknownLayout,
	grouping.ErrMissingField,
}

// statusOf maps an error to the status the client sees.
func statusOf(err error) int {
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, views.ErrUnknownGroup) {
		return http.StatusNotFound
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	var (
		unsupported *filters.UnsupportedOperatorError
		invalid     *filters.InvalidFilterError
		groupField  *grouping.UnsupportedGroupFieldError
		pagination  *cards.InvalidPaginationError
		sort        *cards.InvalidSortError
	)
	switch {
	case errors.As(err, &unsupported), errors.As(err, &invalid), errors.As(err, &groupField),
		errors.As(err, &pagination), errors.As(err, &sort):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Printf("Error handling %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "Server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// intQuery reads an integer query parameter, def when absent.
func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
