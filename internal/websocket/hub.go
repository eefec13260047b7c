package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is pushed to picking dashboards whenever an invoice changes
type Event struct {
	Type      string `json:"type"`
	InvoiceID string `json:"invoiceId"`
	Payload   any    `json:"payload,omitempty"`
}

type envelope struct {
	invoiceID string
	data      []byte
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients map: ClientID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope

	log *zap.Logger

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 64),
		clients:    make(map[string]*Client),
		log:        log.Named("ws"),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Debug("📺 Dashboard connected", zap.String("client", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Debug("📴 Dashboard disconnected", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				if !c.wants(env.invoiceID) {
					continue
				}
				select {
				case c.send <- env.data:
				default:
					// slow consumer, drop the frame rather than block the hub
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues an invoice event for every interested client. It never
// blocks the caller: when the queue is full the event is dropped.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("Error marshaling event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{invoiceID: ev.InvoiceID, data: data}:
	default:
		h.log.Warn("Broadcast queue full, event dropped", zap.String("invoice", ev.InvoiceID))
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
