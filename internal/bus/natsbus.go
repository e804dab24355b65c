package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSBus is the alternative bus backend for deployments that already run
// NATS; selected via config. Subjects reuse the room topic convention.
type NATSBus struct {
	nc *nats.Conn
}

// NewNATSBus connects to NATS with reconnect handling.
func NewNATSBus(url string) (*NATSBus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBus{nc: nc}, nil
}

func (b *NATSBus) Publish(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := b.nc.Publish(Topic(ev.Room), payload); err != nil {
		return fmt.Errorf("publish to %s: %w", Topic(ev.Room), err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context) (<-chan *Event, func(), error) {
	msgCh := make(chan *nats.Msg, 64)
	sub, err := b.nc.ChanSubscribe(topicPrefix+">", msgCh)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe to %s>: %w", topicPrefix, err)
	}

	out := make(chan *Event, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(msg.Data, &ev); err != nil {
					log.Error().Err(err).Str("subject", msg.Subject).Msg("dropping malformed bus event")
					continue
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cancel := func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe from NATS")
		}
	}
	return out, cancel, nil
}

// Close drains the NATS connection.
func (b *NATSBus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
