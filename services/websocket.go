package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/workboard/models"
	"github.com/CrowderSoup/workboard/views"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client represents a connected WebSocket client. Each client keeps its
// own live view sessions, keyed by subscription id.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Identity Identity

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	sessions map[string]*views.Session
}

// WebSocketMessage is the standard message format for WebSocket communication
type WebSocketMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	User string `json:"user,omitempty"`
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewClient(hub *Hub, conn *websocket.Conn, id Identity) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Identity: id,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		sessions: make(map[string]*views.Session),
	}
}

// close cancels the client's work. Send is never closed, writers give up
// once done is closed.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.mu.Lock()
		for sub, s := range c.sessions {
			s.Close()
			delete(c.sessions, sub)
		}
		c.mu.Unlock()
	})
}

// send queues a message for the client. It gives up when the client is
// gone or does not drain its buffer in time.
func (c *Client) send(message WebSocketMessage) {
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	select {
	case c.Send <- jsonMessage:
	case <-c.done:
	case <-time.After(writeWait):
		log.Printf("Dropping message of type '%s' for slow client %s", message.Type, c.Identity.Email)
	}
}

// ReadPump pumps messages from the WebSocket connection to the client's
// live sessions
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshalling WebSocket message: %v", err)
			continue
		}

		if msg.Type == "ping" {
			c.send(WebSocketMessage{
				Type: "pong",
				Data: map[string]string{"timestamp": time.Now().Format(time.RFC3339)},
			})
			continue
		}

		log.Printf("Received message from client %s: %s", c.Identity.Email, msg.Type)
		go c.handle(msg)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type outbound struct {
	message     []byte
	workspaceID string
}

// Hub maintains the set of active clients, broadcasts messages to the
// clients of a workspace and fans card events out to live sessions.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	events     chan models.CardEvent
	refresh    chan struct{}
	stopped    chan struct{}

	views    *ViewService
	pageSize int
}

// NewHub creates a new hub instance
func NewHub(viewService *ViewService, pageSize int) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan models.CardEvent, 64),
		refresh:    make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		views:      viewService,
		pageSize:   pageSize,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
		client.close()
	}
}

// Broadcast sends a message to every client of a workspace
func (h *Hub) Broadcast(message WebSocketMessage, workspaceID string) {
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	select {
	case h.broadcast <- outbound{message: jsonMessage, workspaceID: workspaceID}:
	case <-h.stopped:
	}
}

// PublishEvent hands a card event to the live sessions of every client.
func (h *Hub) PublishEvent(ev models.CardEvent) {
	select {
	case h.events <- ev:
	case <-h.stopped:
	}
}

// RefreshSessions re-resolves every live session whose filters use
// relative dates.
func (h *Hub) RefreshSessions() {
	select {
	case h.refresh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.stopped)
		for client := range h.clients {
			client.close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Client connected: %s", client.Identity.Email)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				log.Printf("Client disconnected: %s", client.Identity.Email)
			}
		case out := <-h.broadcast:
			h.deliver(out)
		case ev := <-h.events:
			message, err := json.Marshal(WebSocketMessage{Type: "card.changed", Data: ev})
			if err != nil {
				log.Printf("Error marshalling card event: %v", err)
				continue
			}
			h.deliver(outbound{message: message, workspaceID: ev.WorkspaceID})
			for client := range h.clients {
				if ev.WorkspaceID == "" || client.Identity.WorkspaceID == ev.WorkspaceID {
					go client.applyEvent(ev)
				}
			}
		case <-h.refresh:
			log.Printf("Refreshing relative date sessions for %d clients", len(h.clients))
			for client := range h.clients {
				go client.refreshRelative()
			}
		}
	}
}

func (h *Hub) deliver(out outbound) {
	for client := range h.clients {
		if out.workspaceID != "" && client.Identity.WorkspaceID != out.workspaceID {
			continue
		}
		select {
		case client.Send <- out.message:
		default:
			log.Printf("Client send buffer full, removing client: %s", client.Identity.Email)
			delete(h.clients, client)
			client.close()
		}
	}
}
