package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/openbid/auctiond/internal/config"
)

// Item mirrors the JSON snapshot structure
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StartingBid int64  `json:"starting_bid"`
	Biddable    bool   `json:"biddable"`
}

func main() {
	_ = godotenv.Load()

	path := "tools/seeditems/items.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using the shared config
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var (
		total    = len(items)
		inserted int
		skipped  int
		errs     int
	)

	for _, it := range items {
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO items (id, name, current_bid, biddable)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO NOTHING
        `,
			it.ID, it.Name, it.StartingBid, it.Biddable,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting item %s: %v\n", it.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Items seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
