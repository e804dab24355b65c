// Package repository is the durable collaborator store: items with their
// current bid, the append-only bid history, and persisted chat messages.
// The auction core only reads and writes the fields declared here; item
// CRUD itself belongs to the collaborator service.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// Item is the auctionable record. The core treats existence as a
// precondition and only touches CurrentBid.
type Item struct {
	ID         string
	CurrentBid int64
	Biddable   bool
}

// Bid is one accepted bid. Bids are append-only; ordering by PlacedAt
// descending determines the latest bid and therefore the provisional winner.
type Bid struct {
	ID       string
	ItemID   string
	BidderID string
	Amount   int64
	PlacedAt time.Time
}

// Message is one persisted chat message.
type Message struct {
	ID       string
	RoomID   string
	SenderID string
	Content  string
	SentAt   time.Time
}

// ItemRepository reads and writes the item fields the auction core owns.
type ItemRepository interface {
	GetItem(ctx context.Context, itemID string) (*Item, error)
	UpdateCurrentBid(ctx context.Context, itemID string, amount int64) error
}

// BidRepository appends to and reads the bid history.
type BidRepository interface {
	Append(ctx context.Context, bid *Bid) error
	// LatestBid returns the most recent bid for the item, or nil when the
	// item has no bids.
	LatestBid(ctx context.Context, itemID string) (*Bid, error)
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *Message) error
}
