package auction

import "errors"

// Bid rejections surfaced to the submitting connection. Validation errors
// are never retried automatically; ErrContended is transient and the caller
// may resubmit.
var (
	ErrItemNotFound   = errors.New("item not found")
	ErrNotBiddable    = errors.New("item is not biddable")
	ErrAuctionEnded   = errors.New("auction ended")
	ErrBidTooLow      = errors.New("bid not higher than current")
	ErrConsecutiveBid = errors.New("consecutive-bid violation")
	ErrContended      = errors.New("contended lock")
)

// RejectReason maps a PlaceBid error to the human-readable reason carried by
// the bidRejected event. The second return is false for transient infra
// errors, which are surfaced generically instead.
func RejectReason(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrNotBiddable):
		return "not biddable", true
	case errors.Is(err, ErrAuctionEnded):
		return "auction ended", true
	case errors.Is(err, ErrConsecutiveBid):
		return "consecutive-bid violation", true
	case errors.Is(err, ErrContended):
		return "contended lock, retry later", true
	case errors.Is(err, ErrBidTooLow):
		return "bid not higher than current", true
	case errors.Is(err, ErrItemNotFound):
		return "item not found", true
	}
	return "", false
}
