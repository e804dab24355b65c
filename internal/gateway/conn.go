package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/events"
)

// Conn is one identity-verified WebSocket connection. mu guards send and
// closed together so a teardown racing a broadcast can never send on a
// closed channel.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	svc    *Service

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newConn(ws *websocket.Conn, userID string, svc *Service) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, 256),
		svc:    svc,
	}
}

// trySend queues a frame without blocking; false means the buffer is full.
// A connection already torn down reports success so broadcast eviction does
// not re-trigger on it.
func (c *Conn) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// sendEvent delivers an event to this connection only.
func (c *Conn) sendEvent(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}
	frame, err := json.Marshal(ServerEvent{Event: eventType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event frame")
		return
	}
	if !c.trySend(frame) {
		log.Warn().Str("connection_id", c.id).Msg("send buffer full, dropping direct event")
	}
}

// close marks the connection dead and closes the send queue. Reachable from
// both the read pump teardown and broadcast eviction; only the first caller
// closes the channel, and the closed flag keeps later trySend calls off it.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.svc.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.svc.cfg.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.svc.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("ping failed")
				return
			}
		}
	}
}

// readPump reads client events until the connection drops, then removes the
// connection from all rooms.
func (c *Conn) readPump() {
	defer func() {
		c.svc.hub.LeaveAll(c)
		c.close()
		c.ws.Close()
		log.Info().
			Str("connection_id", c.id).
			Str("user_id", c.userID).
			Msg("connection closed")
	}()

	c.ws.SetReadLimit(c.svc.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.svc.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.svc.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected close")
			}
			return
		}
		c.dispatch(message)
		c.ws.SetReadDeadline(time.Now().Add(c.svc.cfg.ReadTimeout))
	}
}

// dispatch routes one client frame. Malformed frames are logged and dropped;
// they never terminate the connection.
func (c *Conn) dispatch(message []byte) {
	var ev ClientEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		log.Warn().Err(err).Str("connection_id", c.id).Msg("malformed client frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.svc.cfg.HandlerTimeout)
	defer cancel()

	switch ev.Event {
	case clientJoinAuctionRoom:
		var p joinAuctionRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.ItemID == "" {
			log.Warn().Str("connection_id", c.id).Msg("malformed joinAuctionRoom payload")
			return
		}
		c.svc.hub.Join(events.AuctionRoom(p.ItemID), c)

	case clientLeaveAuctionRoom:
		var p joinAuctionRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.ItemID == "" {
			return
		}
		c.svc.hub.Leave(events.AuctionRoom(p.ItemID), c)

	case clientPlaceBid:
		c.handlePlaceBid(ctx, ev.Data)

	case clientJoinChatRoom:
		var p joinChatRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		c.svc.hub.Join(events.ChatRoom(p.RoomID), c)

	case clientLeaveChatRoom:
		var p joinChatRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		c.svc.hub.Leave(events.ChatRoom(p.RoomID), c)

	case clientSendMessage:
		c.handleSendMessage(ctx, ev.Data)

	default:
		log.Warn().
			Str("event", ev.Event).
			Str("connection_id", c.id).
			Msg("unknown client event, ignoring")
	}
}

// handlePlaceBid runs the bid path; the outcome reaches the caller as a room
// broadcast on success or a private bidRejected on failure.
func (c *Conn) handlePlaceBid(ctx context.Context, data json.RawMessage) {
	var p placeBidPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ItemID == "" || p.Amount <= 0 {
		c.sendEvent(events.TypeBidRejected, events.BidRejectedPayload{Reason: "malformed bid"})
		return
	}
	if p.BidderID != "" && p.BidderID != c.userID {
		c.sendEvent(events.TypeBidRejected, events.BidRejectedPayload{Reason: "bidder identity mismatch"})
		return
	}

	_, err := c.svc.ctrl.PlaceBid(ctx, p.ItemID, c.userID, p.Amount)
	if err == nil {
		return
	}
	if reason, ok := auction.RejectReason(err); ok {
		c.sendEvent(events.TypeBidRejected, events.BidRejectedPayload{Reason: reason})
		return
	}
	// Transient infra fault; surface generically, the caller may retry.
	log.Error().
		Err(err).
		Str("item_id", p.ItemID).
		Str("user_id", c.userID).
		Msg("bid failed")
	c.sendEvent(events.TypeBidRejected, events.BidRejectedPayload{Reason: "temporary failure, try again"})
}

func (c *Conn) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.Content == "" {
		log.Warn().Str("connection_id", c.id).Msg("malformed sendMessage payload")
		return
	}
	if p.SenderID != "" && p.SenderID != c.userID {
		log.Warn().Str("connection_id", c.id).Msg("sender identity mismatch, dropping message")
		return
	}
	if _, err := c.svc.relay.Send(ctx, p.RoomID, c.userID, p.Content); err != nil {
		log.Error().Err(err).Str("room_id", p.RoomID).Msg("chat send failed")
	}
}
