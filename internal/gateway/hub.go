package gateway

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub maps room IDs to the connections joined on this process. Membership is
// purely in-process; a restart drops it and clients must rejoin.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]bool)}
}

// Join subscribes the connection to a room.
func (h *Hub) Join(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Conn]bool)
	}
	h.rooms[roomID][c] = true
	log.Debug().
		Str("room", roomID).
		Str("connection_id", c.id).
		Int("members", len(h.rooms[roomID])).
		Msg("connection joined room")
}

// Leave unsubscribes the connection from a room; further deliveries to it
// for that room stop immediately.
func (h *Hub) Leave(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, c)
}

func (h *Hub) leaveLocked(roomID string, c *Conn) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	log.Debug().Str("room", roomID).Str("connection_id", c.id).Msg("connection left room")
}

// LeaveAll removes a disconnected connection from every room.
func (h *Hub) LeaveAll(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.rooms {
		h.leaveLocked(roomID, c)
	}
}

// Broadcast delivers an event to every connection joined to the room on
// this process. Slow connections are dropped rather than blocking delivery.
func (h *Hub) Broadcast(roomID, eventType string, data json.RawMessage) {
	frame, err := json.Marshal(ServerEvent{Event: eventType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal broadcast frame")
		return
	}

	h.mu.RLock()
	members := h.rooms[roomID]
	targets := make([]*Conn, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(frame) {
			log.Warn().
				Str("connection_id", c.id).
				Str("room", roomID).
				Msg("send buffer full, dropping connection")
			h.LeaveAll(c)
			c.close()
		}
	}
}

// Stats reports membership counts per room and the total connection count
// across rooms.
func (h *Hub) Stats() (total int, perRoom map[string]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	perRoom = make(map[string]int, len(h.rooms))
	seen := make(map[*Conn]bool)
	for roomID, members := range h.rooms {
		perRoom[roomID] = len(members)
		for c := range members {
			seen[c] = true
		}
	}
	return len(seen), perRoom
}
