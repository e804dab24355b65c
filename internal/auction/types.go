// Package auction implements the auction lifecycle: opening a session on
// the first accepted bid, validating and applying bids under a per-item
// lock lease, and settling sessions when their deadline passes.
package auction

import "time"

// Session statuses. The status is an explicit tagged field so idempotency
// checks are a field read, never an inference from key absence.
const (
	StatusOpen  = "open"
	StatusEnded = "ended"
)

const sessionKeyPrefix = "auction:session:"

// Session is the store-resident record tracking an item's bidding window
// from first bid to settlement. It is the only mutable shared state touched
// under the lock.
type Session struct {
	ItemID      string    `json:"item_id"`
	StartedAt   time.Time `json:"started_at"`
	Deadline    time.Time `json:"deadline"`
	Status      string    `json:"status"`
	WinnerID    string    `json:"winner_id,omitempty"`
	FinalAmount int64     `json:"final_amount,omitempty"`
}

func sessionKey(itemID string) string { return sessionKeyPrefix + itemID }
