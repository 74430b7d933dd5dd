// Command migrate applies the schema to the configured database.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"academy/internal/config"
	"academy/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Connect migrates every persistent model.
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Printf("schema applied: %d models", len(database.PersistentModels()))
	return nil
}
