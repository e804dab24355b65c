package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// compare-and-delete must be atomic on the server so an expired lease holder
// can never delete a successor's lease.
var compareAndDeleteScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Redis implements Store on a go-redis client. Every call runs under a
// bounded timeout so an unresponsive server fails the in-flight operation
// instead of hanging a connection handler.
type Redis struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedis wraps client. opTimeout bounds every store call; zero falls back
// to 2s.
func NewRedis(client *redis.Client, opTimeout time.Duration) *Redis {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &Redis{client: client, opTimeout: opTimeout}
}

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx %s: %v", ErrUnavailable, key, err)
	}
	return ok, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Redis) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, value).Int()
	if err != nil {
		return false, fmt.Errorf("%w: cad %s: %v", ErrUnavailable, key, err)
	}
	return n == 1, nil
}

func (r *Redis) Scan(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, prefix, err)
	}
	return keys, nil
}

func (r *Redis) Publish(ctx context.Context, channel, payload string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrUnavailable, channel, err)
	}
	return nil
}

// Subscribe runs a pattern subscription for the life of ctx. The returned
// channel closes when the subscription ends.
func (r *Redis) Subscribe(ctx context.Context, pattern string) (<-chan Message, func()) {
	pubsub := r.client.PSubscribe(ctx, pattern)
	out := make(chan Message, 64)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
				default:
					log.Warn().Str("channel", msg.Channel).Msg("subscriber buffer full, dropping message")
				}
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			log.Error().Err(err).Str("pattern", pattern).Msg("failed to close subscription")
		}
	}
	return out, cancel
}
