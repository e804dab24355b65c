package auction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbid/auctiond/internal/events"
	"github.com/openbid/auctiond/internal/repository"
)

// seedSession writes a session record directly, simulating one left behind
// by a process that crashed before its timer could fire.
func seedSession(t *testing.T, f *fixture, sess *Session) {
	t.Helper()
	raw, err := json.Marshal(sess)
	require.NoError(t, err)
	require.NoError(t, f.store.Set(context.Background(), sessionKey(sess.ItemID), string(raw), 0))
}

func TestSweeperSettlesOverdueSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	f.seedItem("item-1", 0, true)

	now := f.clock.Now().UTC()
	seedSession(t, f, &Session{
		ItemID:    "item-1",
		StartedAt: now.Add(-10 * time.Minute),
		Deadline:  now.Add(-5 * time.Minute),
		Status:    StatusOpen,
	})
	require.NoError(t, f.bids.Append(ctx, &repository.Bid{
		ID: "b1", ItemID: "item-1", BidderID: "alice", Amount: 100,
		PlacedAt: now.Add(-6 * time.Minute),
	}))

	sw := NewSweeper(f.ctrl, time.Minute)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sw.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(f.emitter.byType(events.TypeAuctionEnded)) == 1
	}, time.Second, 5*time.Millisecond, "startup sweep must settle the overdue session")

	payload := f.emitter.byType(events.TypeAuctionEnded)[0].payload.(events.AuctionEndedPayload)
	assert.Equal(t, "alice", payload.WinnerID)
	assert.Equal(t, int64(100), payload.FinalBid)

	sess, err := f.ctrl.getSession(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, sess.Status)

	cancel()
	<-done
}

func TestSweeperIgnoresEndedAndFutureSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedItem("done", 0, true)
	f.seedItem("running", 0, true)

	now := f.clock.Now().UTC()
	seedSession(t, f, &Session{
		ItemID: "done", StartedAt: now.Add(-time.Hour), Deadline: now.Add(-30 * time.Minute),
		Status: StatusEnded, WinnerID: "bob", FinalAmount: 40,
	})
	seedSession(t, f, &Session{
		ItemID: "running", StartedAt: now, Deadline: now.Add(10 * time.Minute),
		Status: StatusOpen,
	})

	sw := NewSweeper(f.ctrl, time.Minute)
	sw.sweep(ctx, false)

	assert.Empty(t, f.emitter.events, "nothing due, nothing emitted")

	sess, err := f.ctrl.getSession(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, sess.Status)
}

func TestSweeperStartupRearmsTimers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedItem("item-1", 0, true)

	now := f.clock.Now().UTC()
	seedSession(t, f, &Session{
		ItemID: "item-1", StartedAt: now, Deadline: now.Add(2 * time.Minute),
		Status: StatusOpen,
	})
	require.NoError(t, f.bids.Append(ctx, &repository.Bid{
		ID: "b1", ItemID: "item-1", BidderID: "alice", Amount: 100, PlacedAt: now,
	}))

	sw := NewSweeper(f.ctrl, time.Hour)
	sw.sweep(ctx, true)

	assert.Empty(t, f.emitter.byType(events.TypeAuctionEnded), "not due yet")

	// The re-armed timer, not a sweep tick, settles at the original deadline.
	f.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		return len(f.emitter.byType(events.TypeAuctionEnded)) == 1
	}, time.Second, 5*time.Millisecond)
}
