package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresItemRepo implements ItemRepository on database/sql.
type PostgresItemRepo struct {
	db *sql.DB
}

func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo { return &PostgresItemRepo{db: db} }

func (r *PostgresItemRepo) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	err := r.db.QueryRowContext(ctx,
		`SELECT id, current_bid, biddable FROM items WHERE id = $1`,
		itemID,
	).Scan(&item.ID, &item.CurrentBid, &item.Biddable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return &item, nil
}

func (r *PostgresItemRepo) UpdateCurrentBid(ctx context.Context, itemID string, amount int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET current_bid = $2 WHERE id = $1`,
		itemID, amount,
	)
	if err != nil {
		return fmt.Errorf("update current bid for item %s: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update current bid for item %s: %w", itemID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresBidRepo implements BidRepository on database/sql.
type PostgresBidRepo struct {
	db *sql.DB
}

func NewPostgresBidRepo(db *sql.DB) *PostgresBidRepo { return &PostgresBidRepo{db: db} }

func (r *PostgresBidRepo) Append(ctx context.Context, bid *Bid) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bids (id, item_id, bidder_id, amount, placed_at) VALUES ($1, $2, $3, $4, $5)`,
		bid.ID, bid.ItemID, bid.BidderID, bid.Amount, bid.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("append bid for item %s: %w", bid.ItemID, err)
	}
	return nil
}

func (r *PostgresBidRepo) LatestBid(ctx context.Context, itemID string) (*Bid, error) {
	var bid Bid
	err := r.db.QueryRowContext(ctx,
		`SELECT id, item_id, bidder_id, amount, placed_at
		 FROM bids WHERE item_id = $1
		 ORDER BY placed_at DESC LIMIT 1`,
		itemID,
	).Scan(&bid.ID, &bid.ItemID, &bid.BidderID, &bid.Amount, &bid.PlacedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest bid for item %s: %w", itemID, err)
	}
	return &bid, nil
}

// PostgresMessageRepo implements MessageRepository on database/sql.
type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo { return &PostgresMessageRepo{db: db} }

func (r *PostgresMessageRepo) SaveMessage(ctx context.Context, msg *Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, sent_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.SentAt,
	)
	if err != nil {
		return fmt.Errorf("save message for room %s: %w", msg.RoomID, err)
	}
	return nil
}
