// migrate applies the embedded schema migrations. Run as: go run ./cmd/migrate [-direction down]
package main

import (
	"errors"
	"flag"
	"log"

	"session-plane/backend/internal/config"
	"session-plane/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	err = migrate.Run(cfg.DatabaseURL, *direction)
	switch {
	case err == nil:
		log.Printf("migrations applied (%s)", *direction)
	case errors.Is(err, migrate.ErrNoChange):
		log.Print("schema already up to date")
	default:
		log.Fatalf("migrate: %v", err)
	}
}
