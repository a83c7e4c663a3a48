package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/workboard/services"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Auth           *services.AuthService
	Lists          *services.ListService
	Cards          *services.CardService
	Views          *services.ViewService
	Hub            *services.Hub
	AllowedOrigins []string
}

// NewRouter registers every route of the API.
func NewRouter(s Services) *mux.Router {
	authHandler := NewAuthHandler(s.Auth)
	listHandler := NewListHandler(s.Lists)
	cardHandler := NewCardHandler(s.Cards, s.Views)
	viewHandler := NewViewHandler(s.Views)
	liveHandler := NewLiveHandler(s.Hub, s.Views, s.AllowedOrigins)

	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/verify", authHandler.VerifyToken).Methods("GET")
	r.HandleFunc("/api/auth/magic-link", authHandler.HandleMagicLink).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(NewAuthMiddleware(s.Auth).Auth)
	route := func(path string, h func(http.ResponseWriter, *http.Request, services.Identity), methods ...string) {
		api.HandleFunc(path, withIdentity(h)).Methods(methods...)
	}

	// Lists, stages, card types and fields
	route("/lists", listHandler.CreateList, "POST")
	route("/lists/{id}", listHandler.GetList, "GET")
	route("/lists/{id}", listHandler.DeleteList, "DELETE")
	route("/lists/{id}/stages", listHandler.AddStage, "POST")
	route("/card-types", listHandler.CreateCardType, "POST")
	route("/fields", listHandler.Fields, "GET")
	route("/fields", listHandler.CreateField, "POST")
	route("/fields/{id}", listHandler.DeleteField, "DELETE")

	// Cards
	route("/cards", cardHandler.ListCards, "GET")
	route("/cards", cardHandler.CreateCard, "POST")
	route("/cards/{id}", cardHandler.UpdateCard, "PUT")
	route("/cards/{id}/move", cardHandler.MoveCard, "POST")
	route("/cards/{id}", cardHandler.DeleteCard, "DELETE")

	// Groups and views
	route("/lists/{id}/groups", viewHandler.ResolveGroups, "POST")
	route("/lists/{id}/groups/{key}/cards", viewHandler.GroupCards, "GET")
	route("/lists/{id}/views", viewHandler.ListViews, "GET")
	route("/lists/{id}/views", viewHandler.CreateView, "POST")
	route("/views/{id}", viewHandler.GetView, "GET")
	route("/views/{id}", viewHandler.UpdateView, "PUT")
	route("/views/{id}", viewHandler.DeleteView, "DELETE")
	route("/views/{id}/groups", viewHandler.ViewGroups, "GET")

	// Live updates
	route("/events", liveHandler.PostEvent, "POST")
	route("/ws", liveHandler.HandleWebSocket, "GET")

	return r
}
