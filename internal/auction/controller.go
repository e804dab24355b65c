package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/events"
	"github.com/openbid/auctiond/internal/lock"
	"github.com/openbid/auctiond/internal/repository"
	"github.com/openbid/auctiond/internal/store"
)

// Config holds the controller's tunables.
type Config struct {
	// Duration is the auction window from first accepted bid to settlement.
	Duration time.Duration
	// SettleTimeout bounds the store work of a single settlement.
	SettleTimeout time.Duration
	// SessionRetention is how long an ended session stays in the store so
	// late bids are still rejected cheaply. After it the record ages out
	// and the sweeper's scan stays bounded.
	SessionRetention time.Duration
	// InstanceID identifies this process in logs and bus envelopes. Leave
	// empty to mint one; share one value across components so log fields
	// and event origins line up.
	InstanceID string
}

// DefaultConfig returns the authoritative defaults: a 5 minute auction
// window, a 5 second settlement budget and a 24 hour session retention.
func DefaultConfig() Config {
	return Config{
		Duration:         5 * time.Minute,
		SettleTimeout:    5 * time.Second,
		SessionRetention: 24 * time.Hour,
	}
}

// Controller drives the per-item state machine NoAuction -> Open -> Ended.
// Bid evaluation serializes through the lock manager, never through
// in-process mutexes, because multiple processes share the store.
type Controller struct {
	store   store.Store
	locks   *lock.Manager
	items   repository.ItemRepository
	bids    repository.BidRepository
	emitter events.Emitter
	clock   clockwork.Clock
	cfg     Config

	instanceID string

	timersMu sync.Mutex
	timers   map[string]*itemTimer

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewController wires a lifecycle controller. clock may be a fake in tests.
func NewController(
	s store.Store,
	locks *lock.Manager,
	items repository.ItemRepository,
	bids repository.BidRepository,
	emitter events.Emitter,
	clock clockwork.Clock,
	cfg Config,
) *Controller {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultConfig().Duration
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultConfig().SettleTimeout
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = DefaultConfig().SessionRetention
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()[:8]
	}
	return &Controller{
		store:      s,
		locks:      locks,
		items:      items,
		bids:       bids,
		emitter:    emitter,
		clock:      clock,
		cfg:        cfg,
		instanceID: cfg.InstanceID,
		timers:     make(map[string]*itemTimer),
		stopCh:     make(chan struct{}),
	}
}

// InstanceID identifies this controller's process in logs and bus events.
func (c *Controller) InstanceID() string { return c.instanceID }

// Close stops all pending settlement timers. Sessions left open are picked
// up by the sweeper on the next start.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// PlaceBid validates and applies one bid. On success the accepted bid is
// returned and a newBid event has been emitted; on rejection one of the
// package sentinels is returned and nothing was written.
func (c *Controller) PlaceBid(ctx context.Context, itemID, bidderID string, amount int64) (*repository.Bid, error) {
	item, err := c.items.GetItem(ctx, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item %s: %w", itemID, err)
	}
	if !item.Biddable {
		return nil, ErrNotBiddable
	}

	// Cheap pre-check without the lock; re-checked inside the critical
	// section because settlement may win the race.
	sess, err := c.getSession(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.Status == StatusEnded {
		return nil, ErrAuctionEnded
	}

	lease, err := c.locks.Acquire(ctx, itemID)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrContended
	}
	if err != nil {
		return nil, err
	}

	bid, opened, err := c.applyBid(ctx, item, bidderID, amount)
	if releaseErr := lease.Release(ctx); releaseErr != nil {
		log.Error().Err(releaseErr).Str("item_id", itemID).Msg("failed to release bid lease")
	}
	if err != nil {
		return nil, err
	}

	c.emit(ctx, events.AuctionRoom(itemID), events.TypeNewBid, events.NewBidPayload{
		ItemID: itemID,
		Bid: events.BidPayload{
			BidderID:  bid.BidderID,
			Amount:    bid.Amount,
			Timestamp: bid.PlacedAt,
		},
	})

	if opened != nil {
		log.Info().
			Str("item_id", itemID).
			Time("deadline", opened.Deadline).
			Str("instance", c.instanceID).
			Msg("auction session opened")
		c.scheduleSettlement(itemID, opened.Deadline)
	}
	return bid, nil
}

// applyBid runs the critical section: re-validate against the freshest
// persisted state, append the bid, update the item's current bid and open a
// session on the first accepted bid. Returns the new session when this bid
// opened one.
func (c *Controller) applyBid(ctx context.Context, item *repository.Item, bidderID string, amount int64) (*repository.Bid, *Session, error) {
	sess, err := c.getSession(ctx, item.ID)
	if err != nil {
		return nil, nil, err
	}
	if sess != nil && sess.Status == StatusEnded {
		return nil, nil, ErrAuctionEnded
	}

	latest, err := c.bids.LatestBid(ctx, item.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("read latest bid for item %s: %w", item.ID, err)
	}

	current := item.CurrentBid
	if latest != nil {
		if latest.BidderID == bidderID {
			return nil, nil, ErrConsecutiveBid
		}
		if latest.Amount > current {
			current = latest.Amount
		}
	}
	if amount <= current {
		return nil, nil, ErrBidTooLow
	}

	now := c.clock.Now().UTC()
	bid := &repository.Bid{
		ID:       uuid.NewString(),
		ItemID:   item.ID,
		BidderID: bidderID,
		Amount:   amount,
		PlacedAt: now,
	}
	if err := c.bids.Append(ctx, bid); err != nil {
		return nil, nil, fmt.Errorf("append bid for item %s: %w", item.ID, err)
	}
	if err := c.items.UpdateCurrentBid(ctx, item.ID, amount); err != nil {
		return nil, nil, fmt.Errorf("update current bid for item %s: %w", item.ID, err)
	}

	if sess != nil {
		return bid, nil, nil
	}
	sess = &Session{
		ItemID:    item.ID,
		StartedAt: now,
		Deadline:  now.Add(c.cfg.Duration),
		Status:    StatusOpen,
	}
	if err := c.putSession(ctx, sess); err != nil {
		return nil, nil, err
	}
	return bid, sess, nil
}

// Settle closes the item's auction if it is still open. It is the single
// settlement entry point shared by timers and the sweeper and is idempotent:
// settling an already-ended session is a no-op with no re-emission.
func (c *Controller) Settle(ctx context.Context, itemID string) error {
	lease, err := c.locks.Acquire(ctx, itemID)
	if errors.Is(err, lock.ErrNotAcquired) {
		return ErrContended
	}
	if err != nil {
		return err
	}

	settled, err := c.settleLocked(ctx, itemID)
	if releaseErr := lease.Release(ctx); releaseErr != nil {
		log.Error().Err(releaseErr).Str("item_id", itemID).Msg("failed to release settlement lease")
	}
	if err != nil {
		return err
	}

	c.cancelTimer(itemID)
	if settled == nil {
		return nil
	}

	if settled.WinnerID != "" {
		log.Info().
			Str("item_id", itemID).
			Str("winner_id", settled.WinnerID).
			Int64("final_amount", settled.FinalAmount).
			Str("instance", c.instanceID).
			Msg("auction settled")
		c.emit(ctx, events.AuctionRoom(itemID), events.TypeAuctionEnded, events.AuctionEndedPayload{
			ItemID:   itemID,
			WinnerID: settled.WinnerID,
			FinalBid: settled.FinalAmount,
		})
	} else {
		log.Info().
			Str("item_id", itemID).
			Str("instance", c.instanceID).
			Msg("auction settled with no bids")
		c.emit(ctx, events.AuctionRoom(itemID), events.TypeAuctionEnd, events.AuctionEndPayload{
			ItemID:  itemID,
			Message: "no valid bids",
		})
	}
	return nil
}

// settleLocked marks the session ended and records the winner. Returns nil
// when there was nothing to settle.
func (c *Controller) settleLocked(ctx context.Context, itemID string) (*Session, error) {
	sess, err := c.getSession(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.Status == StatusEnded {
		return nil, nil
	}

	latest, err := c.bids.LatestBid(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("read latest bid for item %s: %w", itemID, err)
	}

	if sess == nil {
		if latest != nil {
			// Bids exist but no session record; PlaceBid owns session
			// creation, so leave this for it to reconcile.
			log.Warn().Str("item_id", itemID).Msg("bids present without a session record, skipping settlement")
			return nil, nil
		}
		// Zero bids ever placed: record a terminal no-winner session so
		// the outcome is explicit and repeat triggers no-op.
		now := c.clock.Now().UTC()
		sess = &Session{ItemID: itemID, StartedAt: now, Deadline: now, Status: StatusOpen}
	}

	sess.Status = StatusEnded
	if latest != nil {
		sess.WinnerID = latest.BidderID
		sess.FinalAmount = latest.Amount
	}
	if err := c.putSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// emit sends a room event; failures are logged and dropped, never retried.
func (c *Controller) emit(ctx context.Context, roomID, eventType string, payload any) {
	if err := c.emitter.Emit(ctx, roomID, eventType, payload); err != nil {
		log.Error().Err(err).Str("room", roomID).Str("event_type", eventType).Msg("failed to emit event")
	}
}

func (c *Controller) getSession(ctx context.Context, itemID string) (*Session, error) {
	raw, err := c.store.Get(ctx, sessionKey(itemID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session for item %s: %w", itemID, err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session for item %s: %w", itemID, err)
	}
	return &sess, nil
}

// putSession writes the session record. Open sessions carry no TTL (the
// deadline plus the sweeper own their end); ended sessions get the retention
// TTL so the store does not accumulate them forever.
func (c *Controller) putSession(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session for item %s: %w", sess.ItemID, err)
	}
	var ttl time.Duration
	if sess.Status == StatusEnded {
		ttl = c.cfg.SessionRetention
	}
	if err := c.store.Set(ctx, sessionKey(sess.ItemID), string(raw), ttl); err != nil {
		return fmt.Errorf("write session for item %s: %w", sess.ItemID, err)
	}
	return nil
}
