// Package chat persists room messages and republishes them so every process
// sharing the store converges on the same room view.
package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/openbid/auctiond/internal/events"
	"github.com/openbid/auctiond/internal/repository"
)

// Relay persists a chat message, then emits it to the room. Delivery order
// across processes follows publish order on the room's channel; there is no
// global order across senders.
type Relay struct {
	messages repository.MessageRepository
	emitter  events.Emitter
	clock    clockwork.Clock
}

func NewRelay(messages repository.MessageRepository, emitter events.Emitter, clock clockwork.Clock) *Relay {
	return &Relay{messages: messages, emitter: emitter, clock: clock}
}

// Send stores the message durably and broadcasts newMessage to the room.
// A persistence failure aborts the send before anything is published.
func (r *Relay) Send(ctx context.Context, roomID, senderID, content string) (*repository.Message, error) {
	msg := &repository.Message{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
		SentAt:   r.clock.Now().UTC(),
	}
	if err := r.messages.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message for room %s: %w", roomID, err)
	}

	if err := r.emitter.Emit(ctx, events.ChatRoom(roomID), events.TypeNewMessage, events.NewMessagePayload{
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		RoomID:    msg.RoomID,
		Timestamp: msg.SentAt,
	}); err != nil {
		return nil, fmt.Errorf("emit message for room %s: %w", roomID, err)
	}
	return msg, nil
}
