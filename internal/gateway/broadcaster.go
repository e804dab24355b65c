package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/bus"
)

// Broadcaster delivers room events to local members and relays them on the
// event bus. Its instance ID stamps every published envelope so the bus
// consumer can skip events this process already delivered locally.
type Broadcaster struct {
	hub        *Hub
	bus        bus.Bus
	instanceID string
}

// NewBroadcaster wires a broadcaster. instanceID should be the same
// process-level ID the other components log with; empty mints a fresh one.
func NewBroadcaster(hub *Hub, b bus.Bus, instanceID string) *Broadcaster {
	if instanceID == "" {
		instanceID = uuid.NewString()[:8]
	}
	return &Broadcaster{
		hub:        hub,
		bus:        b,
		instanceID: instanceID,
	}
}

// InstanceID identifies this process on the bus.
func (b *Broadcaster) InstanceID() string { return b.instanceID }

// Emit broadcasts locally first, then publishes for other processes. A bus
// failure is logged and the event dropped; local delivery already happened
// and a broadcast is never retried indefinitely.
func (b *Broadcaster) Emit(ctx context.Context, roomID, eventType string, payload any) error {
	ev, err := bus.NewEvent(roomID, eventType, b.instanceID, payload)
	if err != nil {
		return err
	}
	b.hub.Broadcast(roomID, eventType, ev.Data)
	if err := b.bus.Publish(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("room", roomID).
			Str("event_type", eventType).
			Msg("bus publish failed, remote subscribers will miss this event")
	}
	return nil
}
