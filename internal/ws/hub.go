package ws

import (
	"sync"

	"chattrix-service/internal/models"
)

// Hub maintains the per-room broadcast topics. Each room's subscriber set is
// guarded by one hub lock held only for map access; fan-out itself happens on
// per-client buffered channels so one slow connection never blocks a room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

// Subscribe registers a client on a room's topic.
func (h *Hub) Subscribe(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
}

// Unsubscribe removes a client from a room's topic. After it returns no new
// event is dispatched to the client.
func (h *Hub) Unsubscribe(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Subscribers returns the number of clients on a room's topic.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast sends a named event to every client subscribed to the room.
func (h *Hub) Broadcast(roomID, event string, data any) {
	h.send(roomID, nil, event, data)
}

// BroadcastExcept sends a named event to every subscriber but one, used for
// peer notifications the originator should not receive.
func (h *Hub) BroadcastExcept(roomID string, except *Client, event string, data any) {
	h.send(roomID, except, event, data)
}

func (h *Hub) send(roomID string, except *Client, event string, data any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if c != except {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	frame := models.WireEvent{Event: event, Data: data}
	for _, c := range clients {
		c.enqueue(frame)
	}
}
