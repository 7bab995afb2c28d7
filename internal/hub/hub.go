// Package hub fans live train deltas out to websocket clients subscribed
// by line.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"metrotrack/internal/tracking"
)

// AllLines subscribes a client to every line.
const AllLines = "*"

// Client is one connected subscriber.
type Client struct {
	ID    string
	Send  chan []byte
	lines map[string]struct{}
	mu    sync.RWMutex
}

// NewClient creates a client with a buffered send queue.
func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		lines: make(map[string]struct{}),
	}
}

// HasLine reports whether the client follows lineID.
func (c *Client) HasLine(lineID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.lines[lineID]
	return ok
}

func (c *Client) addLines(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.lines[id] = struct{}{}
	}
}

func (c *Client) removeLines(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.lines, id)
	}
}

// Lines returns the client's subscriptions.
func (c *Client) Lines() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.lines))
	for id := range c.lines {
		ids = append(ids, id)
	}
	return ids
}

// Hub tracks clients and their line subscriptions. Fan-out runs on the
// Run goroutine.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	lineClients map[string]map[*Client]struct{}

	broadcast chan []tracking.Delta

	logger *slog.Logger
}

// New creates a hub. Call Run to start it.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		lineClients: make(map[string]map[*Client]struct{}),
		broadcast:   make(chan []tracking.Delta, 256),
		logger:      logger.With("component", "hub"),
	}
}

// Run processes hub events until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case deltas := <-h.broadcast:
			h.fanout(deltas)
		}
	}
}

// Subscribe adds line subscriptions for a client.
func (h *Hub) Subscribe(client *Client, lineIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.addLines(lineIDs)
	for _, id := range lineIDs {
		if h.lineClients[id] == nil {
			h.lineClients[id] = make(map[*Client]struct{})
		}
		h.lineClients[id][client] = struct{}{}
	}
}

// Unsubscribe drops line subscriptions for a client.
func (h *Hub) Unsubscribe(client *Client, lineIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.removeLines(lineIDs)
	for _, id := range lineIDs {
		h.dropLineClient(id, client)
	}
}

// Broadcast queues deltas for fan-out. It never blocks; deltas are dropped
// when the queue is full.
func (h *Hub) Broadcast(deltas []tracking.Delta) {
	if len(deltas) == 0 {
		return
	}
	select {
	case h.broadcast <- deltas:
	default:
		h.logger.Warn("broadcast channel full, dropping deltas", "count", len(deltas))
	}
}

// Register adds a client. It is visible to Deliver and fan-out on return.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client registered", "client_id", client.ID, "total", total)
}

// Deliver queues a message for one registered client. It reports false when
// the client is gone or its buffer is full.
func (h *Hub) Deliver(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client]; !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

// Unregister removes a client and closes its Send channel. Unregistering a
// client twice, or after shutdown, is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.removeClient(client)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DeltaMessage is the wire format of a batch of changes.
type DeltaMessage struct {
	Type    string       `json:"type"`
	Payload DeltaPayload `json:"payload"`
}

// DeltaPayload holds updated states and removed keys.
type DeltaPayload struct {
	Updates []*tracking.State `json:"updates,omitempty"`
	Removes []string          `json:"removes,omitempty"`
}

func (h *Hub) fanout(deltas []tracking.Delta) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perClient := make(map[*Client][]tracking.Delta)
	for _, d := range deltas {
		seen := make(map[*Client]struct{})
		for _, id := range []string{d.LineID, AllLines} {
			for client := range h.lineClients[id] {
				if _, dup := seen[client]; dup {
					continue
				}
				seen[client] = struct{}{}
				perClient[client] = append(perClient[client], d)
			}
		}
	}

	for client, ds := range perClient {
		data, err := json.Marshal(buildDeltaMessage(ds))
		if err != nil {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func buildDeltaMessage(deltas []tracking.Delta) DeltaMessage {
	var updates []*tracking.State
	var removes []string
	for _, d := range deltas {
		switch d.Type {
		case tracking.DeltaUpdate:
			updates = append(updates, d.State)
		case tracking.DeltaRemove:
			removes = append(removes, d.Key)
		}
	}
	return DeltaMessage{
		Type:    "delta",
		Payload: DeltaPayload{Updates: updates, Removes: removes},
	}
}

func (h *Hub) dropLineClient(lineID string, client *Client) {
	if h.lineClients[lineID] == nil {
		return
	}
	delete(h.lineClients[lineID], client)
	if len(h.lineClients[lineID]) == 0 {
		delete(h.lineClients, lineID)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	for _, id := range client.Lines() {
		h.dropLineClient(id, client)
	}
	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.lineClients = make(map[string]map[*Client]struct{})
}
