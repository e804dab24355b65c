// Package events defines the room event names and payloads shared by the
// auction controller, chat relay and gateway. Payloads live here so the
// emitting packages and the gateway avoid cyclic imports.
package events

import (
	"context"
	"time"
)

// Event names delivered to room subscribers.
const (
	TypeNewBid       = "newBid"
	TypeBidRejected  = "bidRejected"
	TypeAuctionEnded = "auctionEnded"
	TypeAuctionEnd   = "auctionEnd"
	TypeNewMessage   = "newMessage"
)

// AuctionRoom names the broadcast room for an item's auction.
func AuctionRoom(itemID string) string { return "auction:" + itemID }

// ChatRoom names the broadcast room for a chat room.
func ChatRoom(roomID string) string { return "chat:" + roomID }

// Emitter delivers a room event to local subscribers and relays it on the
// cross-process event bus. Implementations log and drop bus failures; a
// broadcast is never retried indefinitely.
type Emitter interface {
	Emit(ctx context.Context, roomID, eventType string, payload any) error
}

// BidPayload describes one accepted bid inside a NewBidPayload.
type BidPayload struct {
	BidderID  string    `json:"bidderId"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBidPayload is broadcast after every accepted bid.
type NewBidPayload struct {
	ItemID string     `json:"itemId"`
	Bid    BidPayload `json:"bid"`
}

// BidRejectedPayload is delivered only to the submitting connection.
type BidRejectedPayload struct {
	Reason string `json:"reason"`
}

// AuctionEndedPayload is broadcast when an auction settles with a winner.
type AuctionEndedPayload struct {
	ItemID   string `json:"itemId"`
	WinnerID string `json:"winnerId"`
	FinalBid int64  `json:"finalBid"`
}

// AuctionEndPayload is broadcast when an auction settles without any bids.
type AuctionEndPayload struct {
	ItemID  string `json:"itemId"`
	Message string `json:"message"`
}

// NewMessagePayload is broadcast for every relayed chat message.
type NewMessagePayload struct {
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	RoomID    string    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}
