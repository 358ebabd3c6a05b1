// Package relay is the in-memory publish/subscribe broker behind live
// collaboration on shared lists and recipes. Rooms are named channels
// (one per share token); delivery is fire-and-forget, at most once per
// connected peer.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event kinds carried over the relay.
const (
	EventUpdate    = "update"
	EventItemAdded = "item_added"
)

// envelope is the server-to-client wire frame.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ItemAdded is the lightweight "someone added an item" notification.
// Clients aggregate these over a rolling window instead of toasting each
// one; the shape here is the wire contract.
type ItemAdded struct {
	ListID    string    `json:"listId"`
	ListName  string    `json:"listName"`
	ItemName  string    `json:"itemName"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemAddedFunc observes item_added events flowing through the hub, e.g.
// to fan them out as web-push notifications.
type ItemAddedFunc func(room string, ev ItemAdded)

// Hub maps room names to the set of currently-subscribed clients. All
// room state lives for the process lifetime only; reconnecting clients
// must re-subscribe to every room they care about.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	members map[*Client]map[string]struct{}

	onItemAdded ItemAddedFunc
	logger      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		members: make(map[*Client]map[string]struct{}),
		logger:  logger,
	}
}

// OnItemAdded registers the observer called for every item_added publish.
// Must be set before the hub starts accepting connections.
func (h *Hub) OnItemAdded(fn ItemAddedFunc) {
	h.onItemAdded = fn
}

// Subscribe adds a client to a room, creating the room if absent.
func (h *Hub) Subscribe(c *Client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	if h.members[c] == nil {
		h.members[c] = make(map[string]struct{})
	}
	h.members[c][room] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscribed", "room", room)
}

// Unsubscribe removes a client from a room, deleting the room once empty.
func (h *Hub) Unsubscribe(c *Client, room string) {
	h.mu.Lock()
	h.dropMembership(c, room)
	h.mu.Unlock()
}

// Remove drops a client from every room it subscribed to. Called on
// connection close.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	for room := range h.members[c] {
		h.dropMembership(c, room)
	}
	delete(h.members, c)
	h.mu.Unlock()
}

// dropMembership removes one (client, room) edge and garbage-collects the
// room if it became empty. Callers must hold h.mu.
func (h *Hub) dropMembership(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.members[c]; ok {
		delete(rooms, room)
	}
}

// Publish delivers {eventType, payload} to every client in the room
// except exclude (if non-nil). The fan-out holds the hub lock
// exclusively, so concurrent publishes to one room enqueue in the same
// order for every subscriber (FIFO per room); a client whose queue is
// full misses the event rather than blocking the fan-out.
func (h *Hub) Publish(room, eventType string, payload any, exclude *Client) {
	if eventType == EventItemAdded && h.onItemAdded != nil {
		if ev, ok := payload.(ItemAdded); ok {
			h.onItemAdded(room, ev)
		}
	}

	data, err := json.Marshal(envelope{Type: eventType, Data: payload})
	if err != nil {
		h.logger.Error("marshal publish", "room", room, "type", eventType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[room] {
		if c == exclude {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full: drop rather than block the room
		}
	}
}

// RoomSize returns the number of clients subscribed to a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the number of live rooms.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
