package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/services"
)

// LiveHandler serves the websocket connection and the external mutation
// feed.
type LiveHandler struct {
	hub      *services.Hub
	views    *services.ViewService
	upgrader websocket.Upgrader
}

func NewLiveHandler(hub *services.Hub, vs *services.ViewService, allowedOrigins []string) *LiveHandler {
	return &LiveHandler{
		hub:   hub,
		views: vs,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket upgrades the HTTP connection to a WebSocket connection
func (h *LiveHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request, id services.Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := services.NewClient(h.hub, conn, id)
	h.hub.Register(client)
	log.Printf("WebSocket client registered: %s", id.Email)

	go client.WritePump()
	go client.ReadPump()
}

// PostEvent accepts a card mutation made outside this server and fans it
// out to live sessions.
func (h *LiveHandler) PostEvent(w http.ResponseWriter, r *http.Request, id services.Identity) {
	var ev models.CardEvent
	if !decode(w, r, &ev) {
		return
	}
	if ev.CardID == "" || ev.ListID == "" {
		http.Error(w, "cardId and listId are required", http.StatusBadRequest)
		return
	}
	switch ev.Kind {
	case models.CardCreated, models.CardUpdated, models.CardMovedStage, models.CardDeleted:
	default:
		http.Error(w, "unknown changeKind", http.StatusBadRequest)
		return
	}

	ws, err := h.views.WorkspaceOf(r.Context(), ev.ListID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ws != id.WorkspaceID {
		http.Error(w, "list not found", http.StatusNotFound)
		return
	}

	ev.WorkspaceID = ws
	h.hub.PublishEvent(ev)
	writeJSON(w, http.StatusAccepted, ev)
}
