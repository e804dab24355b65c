package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/store"
)

// StoreBus rides the shared state store's pub/sub. This is the default
// backend: every process already holds a store connection for locks and
// sessions, so room fan-out needs no extra infrastructure.
type StoreBus struct {
	store store.Store
}

func NewStoreBus(s store.Store) *StoreBus { return &StoreBus{store: s} }

func (b *StoreBus) Publish(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return b.store.Publish(ctx, Topic(ev.Room), string(payload))
}

func (b *StoreBus) Subscribe(ctx context.Context) (<-chan *Event, func(), error) {
	msgs, cancel := b.store.Subscribe(ctx, topicPrefix+"*")
	out := make(chan *Event, 64)

	go func() {
		defer close(out)
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Error().Err(err).Str("channel", msg.Channel).Msg("dropping malformed bus event")
				continue
			}
			select {
			case out <- &ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}
