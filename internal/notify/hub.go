// Package notify pushes view changes to connected procurement screens over websockets.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types
const (
	ViewRefreshed       = "view_refreshed"
	RequirementsChanged = "requirements_changed"
	ExpensesChanged     = "expenses_changed"
)

// Event is the payload broadcast to all connected clients.
type Event struct {
	Type     string `json:"type"`
	EntryID  string `json:"entry_id,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	Supplier string `json:"supplier,omitempty"`
	Code     string `json:"code,omitempty"`
	Target   string `json:"target,omitempty"`
	Required int    `json:"required_count"`
	Ordered  int    `json:"ordered_count"`
}

// Notifier receives view change events
type Notifier interface {
	Notify(evt Event)
}

type client struct {
	conn *ws.Conn
	mu   sync.Mutex
}

// Hub maintains connected clients and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	onCount func(total int)
}

var _ Notifier = (*Hub)(nil)

// NewHub creates a new Hub. onCount, when set, is called with the client
// count after every connect and disconnect.
func NewHub(onCount func(total int)) *Hub {
	return &Hub{clients: make(map[*client]struct{}), onCount: onCount}
}

func (h *Hub) register(c *client) int {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.reportCount(total)
	return total
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.reportCount(total)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (h *Hub) reportCount(total int) {
	if h.onCount != nil {
		h.onCount(total)
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify implements Notifier
func (h *Hub) Notify(evt Event) {
	h.Broadcast(evt)
}

// Broadcast sends an event to all connected clients. Clients that fail a
// write are dropped.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("type", evt.Type).Msg("ws: marshal error")
		return
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		writeErr := c.conn.WriteMessage(ws.TextMessage, data)
		c.mu.Unlock()

		if writeErr != nil {
			log.Debug().Err(writeErr).Msg("ws: dropping client")
			h.unregister(c)
		}
	}
}

// Upgrader is the default websocket upgrader.
var Upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the connection and keeps it alive with pings
// until the client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws: upgrade error")
		return
	}

	c := &client{conn: conn}
	total := h.register(c)
	log.Info().Int("clients", total).Msg("ws: client connected")

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(5*time.Second))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.unregister(c)
	log.Info().Msg("ws: client disconnected")
}
