// Package bus is the room event bus: the cross-process fan-out channel for
// auction lifecycle events and chat messages. Topics follow the convention
// "room.events.<roomID>"; consumers subscribe to the wildcard and filter by
// the envelope's Origin to avoid re-delivering their own events.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	topicPrefix = "room.events."
)

// Topic returns the bus topic for a room.
func Topic(roomID string) string { return topicPrefix + roomID }

// Event is the envelope published for every room event.
type Event struct {
	ID        string          `json:"id"`
	Room      string          `json:"room"`
	Type      string          `json:"type"`
	Origin    string          `json:"origin"` // instance ID of the publisher
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent builds an envelope around payload.
func NewEvent(roomID, eventType, origin string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Room:      roomID,
		Type:      eventType,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Bus publishes room events and delivers every event published by any
// process sharing the bus. Per-topic delivery order from a single publisher
// is preserved; there is no total order across publishers.
type Bus interface {
	Publish(ctx context.Context, ev *Event) error
	// Subscribe delivers all room events until the cancel func is called
	// or ctx is done.
	Subscribe(ctx context.Context) (<-chan *Event, func(), error)
}
