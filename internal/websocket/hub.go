package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/xelth-com/eckclockgo/internal/events"
)

// Hub maintains the set of dashboard clients and pushes run events to them
type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// writePumps watch done and close their connections
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			log.Printf("🖥️ Dashboard connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("📴 Dashboard disconnected: %s", client.ID)
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// runMessage is the JSON pushed to dashboards
type runMessage struct {
	Type string          `json:"type"`
	Run  events.RunEvent `json:"run"`
}

// NotifyRun pushes ev to every client watching its device (or all devices).
// Slow clients miss messages instead of blocking the run.
func (h *Hub) NotifyRun(ctx context.Context, ev events.RunEvent) error {
	msg, err := json.Marshal(runMessage{Type: "SYNC_FINISHED", Run: ev})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.watches(ev.DeviceID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Buffer full or client dead
		}
	}
	return nil
}
