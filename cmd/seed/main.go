// Seed tool: replaces the stored users, posts and comments with the dataset
// from the seed source, without starting the HTTP server.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"userposts/internal/config"
	"userposts/internal/db"
	"userposts/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	flag.StringVar(&cfg.Seed.BaseURL, "base-url", cfg.Seed.BaseURL, "seed source base URL")
	flag.DurationVar(&cfg.Seed.Timeout, "timeout", cfg.Seed.Timeout, "HTTP timeout for the seed source")
	flag.Parse()

	ctx := context.Background()
	store, err := db.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	log.Printf("seeding from %s into %s", cfg.Seed.BaseURL, cfg.Store.Driver)
	start := time.Now()
	sum, err := seed.NewLoader(store, nil, cfg.Seed).Load(ctx)
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	log.Printf("done in %s: users=%d posts=%d comments=%d",
		time.Since(start).Truncate(time.Millisecond), sum.Users, sum.Posts, sum.Comments)
}
