package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetNX(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.SetNX(ctx, "k", "a", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "k", "b", 0)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX on a live key must fail")

	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", val)
}

func TestMemorySetNXExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewMemoryWithClock(clock)

	ok, err := m.SetNX(ctx, "k", "a", 3*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Second)
	ok, err = m.SetNX(ctx, "k", "b", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(2 * time.Second)
	ok, err = m.SetNX(ctx, "k", "b", 0)
	require.NoError(t, err)
	assert.True(t, ok, "SetNX must succeed after the previous value expired")
}

func TestMemoryCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", "mine", 0))

	ok, err := m.CompareAndDelete(ctx, "k", "theirs")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Get(ctx, "k")
	require.NoError(t, err, "mismatched CompareAndDelete must not remove the key")

	ok, err = m.CompareAndDelete(ctx, "k", "mine")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryScan(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "auction:session:1", "a", 0))
	require.NoError(t, m.Set(ctx, "auction:session:2", "b", 0))
	require.NoError(t, m.Set(ctx, "auction:lock:1", "c", 0))

	keys, err := m.Scan(ctx, "auction:session:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"auction:session:1", "auction:session:2"}, keys)
}

// Publishers racing subscription cancels must never hit a closed channel.
func TestMemoryPubSubCancelChurn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					require.NoError(t, m.Publish(ctx, "room.events.x", "payload"))
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		_, stop := m.Subscribe(ctx, "room.events.*")
		stop()
	}

	close(done)
	wg.Wait()
}

func TestMemoryPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	ch, stop := m.Subscribe(ctx, "room.events.*")
	defer stop()

	require.NoError(t, m.Publish(ctx, "room.events.item-1", "hello"))
	require.NoError(t, m.Publish(ctx, "other.channel", "ignored"))

	select {
	case msg := <-ch:
		assert.Equal(t, "room.events.item-1", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected a message on the matching pattern")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on non-matching channel: %+v", msg)
	default:
	}
}
