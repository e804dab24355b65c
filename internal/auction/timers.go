package auction

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// itemTimer pairs a settlement timer with a done channel so replacing or
// cancelling it also releases the goroutine waiting on it.
type itemTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

// scheduleSettlement arms a one-shot timer that settles the item exactly at
// deadline. Any existing timer for the item is replaced atomically and its
// waiter released. Timers are in-memory only; the sweeper covers deadlines
// missed across restarts.
func (c *Controller) scheduleSettlement(itemID string, deadline time.Time) {
	wait := deadline.Sub(c.clock.Now())
	if wait < 0 {
		wait = 0
	}
	it := &itemTimer{
		timer: c.clock.NewTimer(wait),
		done:  make(chan struct{}),
	}
	c.replaceTimer(itemID, it)

	go func() {
		select {
		case <-it.timer.Chan():
			c.removeTimer(itemID, it)
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SettleTimeout)
			defer cancel()
			if err := c.Settle(ctx, itemID); err != nil {
				log.Error().
					Err(err).
					Str("item_id", itemID).
					Str("instance", c.instanceID).
					Msg("timer settlement failed, sweeper will retry")
			}
		case <-it.done:
			// Replaced or cancelled; the new owner stopped the timer.
		case <-c.stopCh:
			stopAndDrainTimer(it.timer)
			c.removeTimer(itemID, it)
		}
	}()

	log.Debug().
		Str("item_id", itemID).
		Time("deadline", deadline).
		Dur("wait", wait).
		Str("instance", c.instanceID).
		Msg("settlement timer armed")
}

// replaceTimer atomically swaps in a new timer for the item, stopping any
// existing one and releasing its waiter so two timers never race for the
// same deadline.
func (c *Controller) replaceTimer(itemID string, newTimer *itemTimer) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if existing, ok := c.timers[itemID]; ok {
		stopAndDrainTimer(existing.timer)
		close(existing.done)
	}
	c.timers[itemID] = newTimer
}

func (c *Controller) cancelTimer(itemID string) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if it, ok := c.timers[itemID]; ok {
		stopAndDrainTimer(it.timer)
		close(it.done)
		delete(c.timers, itemID)
	}
}

// removeTimer clears the fired timer's map entry unless a replacement has
// already taken the slot.
func (c *Controller) removeTimer(itemID string, it *itemTimer) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if cur, ok := c.timers[itemID]; ok && cur == it {
		delete(c.timers, itemID)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine cannot leak a stale fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
