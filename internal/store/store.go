package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable indicates the shared store could not be reached or the
	// operation timed out. Callers must fail closed: deny the operation
	// rather than guess.
	ErrUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("key not found")
)

// Message is a single pub/sub delivery.
type Message struct {
	Channel string
	Payload string
}

// Store is the shared state store the auction engine runs against. It doubles
// as the lock manager's backend (SetNX/CompareAndDelete) and as the durable
// record of in-flight auction sessions.
type Store interface {
	// SetNX sets key to value only if the key is absent. A zero ttl means
	// no expiry. Returns true when the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set unconditionally writes key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes key only if its current value equals value.
	// Returns true when the key was deleted.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Scan returns all keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Publish sends payload on channel.
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe delivers messages on channels matching pattern until the
	// returned cancel func is called or ctx is done.
	Subscribe(ctx context.Context, pattern string) (<-chan Message, func())
}
