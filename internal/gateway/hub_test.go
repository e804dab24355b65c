package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbid/auctiond/internal/bus"
	"github.com/openbid/auctiond/internal/events"
	"github.com/openbid/auctiond/internal/store"
)

func testConn(id string) *Conn {
	return &Conn{id: id, userID: id, send: make(chan []byte, 8)}
}

func decodeFrame(t *testing.T, frame []byte) ServerEvent {
	t.Helper()
	var ev ServerEvent
	require.NoError(t, json.Unmarshal(frame, &ev))
	return ev
}

func TestHubBroadcastReachesRoomMembersOnly(t *testing.T) {
	h := NewHub()
	inRoom := testConn("in")
	otherRoom := testConn("other")
	h.Join("room-a", inRoom)
	h.Join("room-b", otherRoom)

	h.Broadcast("room-a", events.TypeNewBid, json.RawMessage(`{"itemId":"x"}`))

	select {
	case frame := <-inRoom.send:
		ev := decodeFrame(t, frame)
		assert.Equal(t, events.TypeNewBid, ev.Event)
	default:
		t.Fatal("room member did not receive the broadcast")
	}

	select {
	case <-otherRoom.send:
		t.Fatal("connection in another room received the broadcast")
	default:
	}
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	h := NewHub()
	c := testConn("c")
	h.Join("room-a", c)
	h.Leave("room-a", c)

	h.Broadcast("room-a", events.TypeNewBid, json.RawMessage(`{}`))

	select {
	case <-c.send:
		t.Fatal("left connection still received a broadcast")
	default:
	}
}

func TestHubLeaveAll(t *testing.T) {
	h := NewHub()
	c := testConn("c")
	h.Join("room-a", c)
	h.Join("room-b", c)
	h.LeaveAll(c)

	total, perRoom := h.Stats()
	assert.Zero(t, total)
	assert.Empty(t, perRoom)
}

func TestHubStats(t *testing.T) {
	h := NewHub()
	a, b := testConn("a"), testConn("b")
	h.Join("room-1", a)
	h.Join("room-1", b)
	h.Join("room-2", a)

	total, perRoom := h.Stats()
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, perRoom["room-1"])
	assert.Equal(t, 1, perRoom["room-2"])
}

// Clients disconnecting while broadcasts are in flight must never panic the
// process; a closed connection is simply skipped.
func TestHubBroadcastDuringDisconnectChurn(t *testing.T) {
	h := NewHub()

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
					h.Broadcast("room", events.TypeNewBid, json.RawMessage(`{}`))
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		c := testConn(fmt.Sprintf("c%d", i))
		h.Join("room", c)
		h.LeaveAll(c)
		c.close()
	}

	close(done)
	wg.Wait()
}

func TestBroadcasterUsesInjectedInstanceID(t *testing.T) {
	b := NewBroadcaster(NewHub(), bus.NewStoreBus(store.NewMemory()), "proc-1")
	assert.Equal(t, "proc-1", b.InstanceID())

	minted := NewBroadcaster(NewHub(), bus.NewStoreBus(store.NewMemory()), "")
	assert.NotEmpty(t, minted.InstanceID())
}

// Two gateway instances share one bus: an event emitted on instance A must
// reach B's local members exactly once, and must not be re-delivered to A's
// members when A's consumer sees its own event on the bus.
func TestBusConsumerCrossInstanceFanout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shared := store.NewMemory()

	hubA := NewHub()
	busA := bus.NewStoreBus(shared)
	svcA := NewService(DefaultConfig(), hubA, NewBroadcaster(hubA, busA, ""), busA, nil, nil, nil)

	hubB := NewHub()
	busB := bus.NewStoreBus(shared)
	svcB := NewService(DefaultConfig(), hubB, NewBroadcaster(hubB, busB, ""), busB, nil, nil, nil)

	go svcA.RunBusConsumer(ctx)
	go svcB.RunBusConsumer(ctx)
	// Let the subscriptions attach before publishing.
	time.Sleep(20 * time.Millisecond)

	memberA := testConn("a")
	memberB := testConn("b")
	room := events.AuctionRoom("item-1")
	hubA.Join(room, memberA)
	hubB.Join(room, memberB)

	require.NoError(t, svcA.broadcaster.Emit(ctx, room, events.TypeNewBid, events.NewBidPayload{ItemID: "item-1"}))

	// B's member receives the event via the bus.
	select {
	case frame := <-memberB.send:
		ev := decodeFrame(t, frame)
		assert.Equal(t, events.TypeNewBid, ev.Event)
	case <-time.After(time.Second):
		t.Fatal("remote instance member did not receive the event")
	}

	// A's member got exactly one local delivery, no bus echo.
	select {
	case <-memberA.send:
	case <-time.After(time.Second):
		t.Fatal("local member did not receive the event")
	}
	time.Sleep(50 * time.Millisecond)
	select {
	case <-memberA.send:
		t.Fatal("local member received a duplicate via the bus")
	default:
	}
}
