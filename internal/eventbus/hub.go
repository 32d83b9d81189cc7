package eventbus

import (
	"context"
	"sync"
)

// Hub is a single-topic broadcast pub/sub broker for WebSocket dashboard
// clients, adapted from the teacher's per-topic websocket.Hub
// (server/internal/websocket/hub.go) down to one implicit "events" topic
// — every connected client receives every fleet event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
}

// NewHub creates an idle Hub. Call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
	}
}

// Run starts the hub's event loop. Exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// Publish sends an event to every connected client. Clients whose send
// buffer is full are disconnected rather than allowed to stall the
// broadcast to everyone else.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- evt:
		default:
			h.unregister <- c
		}
	}
}

// Subscribe registers a client with the hub.
func (h *Hub) Subscribe(c *Client) { h.register <- c }

// Unsubscribe removes a client from the hub.
func (h *Hub) Unsubscribe(c *Client) { h.unregister <- c }

// ConnectedCount reports how many dashboard clients are currently attached.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
