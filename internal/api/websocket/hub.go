package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/metrics"
)

// MessageTypeTopologyUpdate is sent whenever a namespace topology changes.
const MessageTypeTopologyUpdate = "topology_update"

// Message is the JSON frame pushed to clients.
type Message struct {
	Type      string        `json:"type"`
	Namespace string        `json:"namespace"`
	Topology  *models.Model `json:"topology,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type envelope struct {
	namespace string
	data      []byte
}

// Hub tracks connected clients per namespace and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub that stops with ctx.
func NewHub(ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until the hub stops.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			metrics.WebSocketConnectionsActive.Inc()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.namespace != env.namespace {
					continue
				}
				select {
				case c.send <- env.data:
				default:
					// slow consumer
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes c; callers hold h.mu.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WebSocketConnectionsActive.Dec()
}

// Stop closes every client and stops Run.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.drop(c)
	}
}

// Publish sends a topology_update for namespace to its subscribers. model
// may be nil, telling clients to refetch.
func (h *Hub) Publish(namespace string, model *models.Model) error {
	data, err := json.Marshal(Message{
		Type:      MessageTypeTopologyUpdate,
		Namespace: namespace,
		Topology:  model,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- envelope{namespace: namespace, data: data}:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// HasSubscribers reports whether any client watches namespace.
func (h *Hub) HasSubscribers(namespace string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.namespace == namespace {
			return true
		}
	}
	return false
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
