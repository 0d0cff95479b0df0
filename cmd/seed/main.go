package main

import (
	"context"
	"log"
	"os"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/seed"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	fixture, err := catalog.NewFixture()
	if err != nil {
		logger.Fatalf("load fixture: %v", err)
	}

	n, err := seed.Apply(ctx, fixture, catalog.NewPostgres(pool, logger))
	if err != nil {
		logger.Fatalf("seed apply: %v", err)
	}

	logger.Printf("seed applied (%d products)", n)
}
