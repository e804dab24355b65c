package repository

import (
	"context"
	"sync"
)

// MemoryItemRepo is an in-process ItemRepository for tests and dev mode.
type MemoryItemRepo struct {
	mu    sync.Mutex
	items map[string]*Item
}

func NewMemoryItemRepo() *MemoryItemRepo {
	return &MemoryItemRepo{items: make(map[string]*Item)}
}

// PutItem seeds or replaces an item record.
func (r *MemoryItemRepo) PutItem(item *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
}

func (r *MemoryItemRepo) GetItem(ctx context.Context, itemID string) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *MemoryItemRepo) UpdateCurrentBid(ctx context.Context, itemID string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return ErrNotFound
	}
	item.CurrentBid = amount
	return nil
}

// MemoryBidRepo is an in-process BidRepository for tests and dev mode.
type MemoryBidRepo struct {
	mu   sync.Mutex
	bids map[string][]*Bid
}

func NewMemoryBidRepo() *MemoryBidRepo {
	return &MemoryBidRepo{bids: make(map[string][]*Bid)}
}

func (r *MemoryBidRepo) Append(ctx context.Context, bid *Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *bid
	r.bids[bid.ItemID] = append(r.bids[bid.ItemID], &cp)
	return nil
}

func (r *MemoryBidRepo) LatestBid(ctx context.Context, itemID string) (*Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.bids[itemID]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[0]
	for _, b := range history[1:] {
		if b.PlacedAt.After(latest.PlacedAt) || (b.PlacedAt.Equal(latest.PlacedAt) && b.Amount > latest.Amount) {
			latest = b
		}
	}
	cp := *latest
	return &cp, nil
}

// All returns the full bid history for an item in append order.
func (r *MemoryBidRepo) All(itemID string) []*Bid {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Bid, 0, len(r.bids[itemID]))
	for _, b := range r.bids[itemID] {
		cp := *b
		out = append(out, &cp)
	}
	return out
}

// MemoryMessageRepo is an in-process MessageRepository for tests and dev mode.
type MemoryMessageRepo struct {
	mu       sync.Mutex
	messages map[string][]*Message
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{messages: make(map[string][]*Message)}
}

func (r *MemoryMessageRepo) SaveMessage(ctx context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], &cp)
	return nil
}

// Messages returns the persisted messages for a room in save order.
func (r *MemoryMessageRepo) Messages(roomID string) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Message, 0, len(r.messages[roomID]))
	for _, m := range r.messages[roomID] {
		cp := *m
		out = append(out, &cp)
	}
	return out
}
