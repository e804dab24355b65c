package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbid/auctiond/internal/events"
	"github.com/openbid/auctiond/internal/store"
)

func TestStoreBusRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewStoreBus(store.NewMemory())
	ch, stop, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	ev, err := NewEvent(events.AuctionRoom("item-1"), events.TypeNewBid, "inst-a", events.NewBidPayload{
		ItemID: "item-1",
		Bid:    events.BidPayload{BidderID: "alice", Amount: 100},
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, ev))

	select {
	case got := <-ch:
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, events.AuctionRoom("item-1"), got.Room)
		assert.Equal(t, events.TypeNewBid, got.Type)
		assert.Equal(t, "inst-a", got.Origin)
		assert.JSONEq(t, string(ev.Data), string(got.Data))
	case <-time.After(time.Second):
		t.Fatal("expected the published event on the subscription")
	}
}

func TestStoreBusSubscriberSeesAllRooms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewStoreBus(store.NewMemory())
	ch, stop, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	for _, room := range []string{events.AuctionRoom("x"), events.ChatRoom("y")} {
		ev, err := NewEvent(room, events.TypeNewMessage, "inst-a", events.NewMessagePayload{RoomID: room})
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, ev))
	}

	rooms := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			rooms[got.Room] = true
		case <-time.After(time.Second):
			t.Fatal("expected two events across rooms")
		}
	}
	assert.True(t, rooms[events.AuctionRoom("x")])
	assert.True(t, rooms[events.ChatRoom("y")])
}
