package gateway

import "encoding/json"

// Client event names accepted over a connection.
const (
	clientJoinAuctionRoom  = "joinAuctionRoom"
	clientLeaveAuctionRoom = "leaveAuctionRoom"
	clientPlaceBid         = "placeBid"
	clientJoinChatRoom     = "joinChatRoom"
	clientLeaveChatRoom    = "leaveChatRoom"
	clientSendMessage      = "sendMessage"
)

// ClientEvent is the wire frame a connection sends.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the wire frame delivered to a connection.
type ServerEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinAuctionRoomPayload struct {
	ItemID string `json:"itemId"`
}

type placeBidPayload struct {
	ItemID string `json:"itemId"`
	// BidderID is informational; the verified connection identity is
	// authoritative and a mismatch is rejected.
	BidderID string `json:"bidderId"`
	Amount   int64  `json:"amount"`
}

type joinChatRoomPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}
