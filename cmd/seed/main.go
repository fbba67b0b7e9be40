// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"session-plane/backend/internal/config"
	"session-plane/backend/internal/db"
	"session-plane/backend/internal/security"
	"session-plane/backend/internal/storage"
	"session-plane/backend/internal/storage/postgres"
	userdomain "session-plane/backend/internal/user/domain"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password12345"
	devUserID    = "dev-user-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	store := postgres.New(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	var alreadySeeded bool
	err = store.InTx(ctx, func(tx storage.TxStore) error {
		existing, err := tx.GetUserByNormalizedEmail(ctx, userdomain.NormalizeEmail(devUserEmail))
		if err != nil {
			return err
		}
		if existing != nil {
			alreadySeeded = true
			return nil
		}
		return tx.CreateUser(ctx, &userdomain.User{
			ID:              devUserID,
			Email:           devUserEmail,
			NormalizedEmail: userdomain.NormalizeEmail(devUserEmail),
			PasswordHash:    passwordHash,
			Status:          userdomain.UserStatusActive,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if alreadySeeded {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		return
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
}
