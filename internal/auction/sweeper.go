package auction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sweeper reconciles sessions whose deadline passed without settlement, the
// gap left by in-memory timers when a process crashes. It runs once at start
// and then on a fixed interval, guaranteeing at-least-once settlement.
type Sweeper struct {
	store    sessionScanner
	ctrl     *Controller
	clock    clockwork.Clock
	interval time.Duration
}

// sessionScanner is the slice of the store the sweeper needs.
type sessionScanner interface {
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// NewSweeper returns a sweeper on the controller's store. A zero or negative
// interval falls back to one minute.
func NewSweeper(ctrl *Controller, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    ctrl.store,
		ctrl:     ctrl,
		clock:    ctrl.clock,
		interval: interval,
	}
}

// Run sweeps immediately, then on every tick until ctx is done. The startup
// pass also re-arms settlement timers for sessions that are still open, so a
// restarted process settles at the original deadline instead of waiting for
// the next sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", s.interval).
		Str("instance", s.ctrl.instanceID).
		Msg("sweeper started")

	s.sweep(ctx, true)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", s.ctrl.instanceID).Msg("sweeper shutting down")
			return nil
		case <-ticker.Chan():
			s.sweep(ctx, false)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, rearm bool) {
	keys, err := s.store.Scan(ctx, sessionKeyPrefix)
	if err != nil {
		log.Error().Err(err).Str("instance", s.ctrl.instanceID).Msg("session scan failed, retrying next cycle")
		return
	}

	now := s.clock.Now()
	for _, key := range keys {
		itemID := strings.TrimPrefix(key, sessionKeyPrefix)
		sess, err := s.ctrl.getSession(ctx, itemID)
		if err != nil {
			log.Error().Err(err).Str("item_id", itemID).Msg("failed to read session during sweep")
			continue
		}
		if sess == nil || sess.Status == StatusEnded {
			continue
		}
		if sess.Deadline.After(now) {
			if rearm {
				s.ctrl.scheduleSettlement(itemID, sess.Deadline)
			}
			continue
		}
		if err := s.ctrl.Settle(ctx, itemID); err != nil {
			if errors.Is(err, ErrContended) {
				// Another process is settling this one right now.
				log.Debug().Str("item_id", itemID).Msg("settlement contended during sweep")
				continue
			}
			log.Error().Err(err).Str("item_id", itemID).Msg("sweep settlement failed, retrying next cycle")
		}
	}
}
