package lock

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbid/auctiond/internal/store"
)

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	m := NewManager(store.NewMemory(), 3*time.Second)

	lease, err := m.Acquire(ctx, "item-1")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "item-1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	// A lease on a different item is independent.
	other, err := m.Acquire(ctx, "item-2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	lease2, err := m.Acquire(ctx, "item-1")
	require.NoError(t, err)
	require.NoError(t, lease2.Release(ctx))
}

func TestLeaseExpires(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewManager(store.NewMemoryWithClock(clock), 3*time.Second)

	_, err := m.Acquire(ctx, "item-1")
	require.NoError(t, err)

	clock.Advance(4 * time.Second)

	lease, err := m.Acquire(ctx, "item-1")
	require.NoError(t, err, "lease must self-expire after its TTL")
	require.NoError(t, lease.Release(ctx))
}

func TestExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	st := store.NewMemoryWithClock(clock)
	m := NewManager(st, 3*time.Second)

	stale, err := m.Acquire(ctx, "item-1")
	require.NoError(t, err)

	clock.Advance(4 * time.Second)

	fresh, err := m.Acquire(ctx, "item-1")
	require.NoError(t, err)

	// The stale holder's release is a no-op against the successor's lease.
	require.NoError(t, stale.Release(ctx))
	_, err = m.Acquire(ctx, "item-1")
	assert.ErrorIs(t, err, ErrNotAcquired, "successor's lease must survive a stale release")

	require.NoError(t, fresh.Release(ctx))
}
