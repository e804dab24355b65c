// Package lock provides the per-item mutual-exclusion lease used to
// serialize bid evaluation across processes sharing one store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/store"
)

// ErrNotAcquired is returned when the lease is already held. Callers decide
// whether to resubmit; the manager never retries or queues.
var ErrNotAcquired = errors.New("lock not acquired")

const keyPrefix = "auction:lock:"

// Manager hands out time-bounded leases over single items. The lease TTL
// must be strictly greater than the expected validate+persist latency so a
// crashed holder's lease self-expires without unblocking a live one.
type Manager struct {
	store store.Store
	ttl   time.Duration
}

// NewManager returns a Manager issuing leases with the given ttl. A zero or
// negative ttl falls back to 3 seconds.
func NewManager(s store.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Manager{store: s, ttl: ttl}
}

// Lease is one acquired lock. It is valid until released or until its TTL
// elapses, whichever comes first.
type Lease struct {
	store store.Store
	key   string
	token string
}

// Acquire attempts a single conditional-set on the item's lock key.
// It does not retry or back off.
func (m *Manager) Acquire(ctx context.Context, itemID string) (*Lease, error) {
	key := keyPrefix + itemID
	token := uuid.NewString()
	ok, err := m.store.SetNX(ctx, key, token, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lock for item %s: %w", itemID, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lease{store: m.store, key: key, token: token}, nil
}

// Release deletes the lock key only if this lease still holds it, so a
// holder preempted after TTL expiry can never release a successor's lease.
func (l *Lease) Release(ctx context.Context) error {
	ok, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if !ok {
		// Lease expired and may have been re-acquired; nothing to release.
		log.Debug().Str("key", l.key).Msg("lease already expired at release")
	}
	return nil
}
