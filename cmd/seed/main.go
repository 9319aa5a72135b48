package main

import (
	"log"
	"time"

	"github.com/pairmatch/ledger/internal/auth"
	"github.com/pairmatch/ledger/internal/config"
	"github.com/pairmatch/ledger/internal/db"
)

func main() {
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	keys, err := db.SeedTestData(database)
	if err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	// Dev tokens for the first two identities, to poke the API by hand.
	ttl := time.Duration(cfg.Auth.TokenTTL) * time.Minute
	for _, key := range keys[:2] {
		token, err := auth.Sign(key, cfg.Auth.JWTSecret, ttl)
		if err != nil {
			log.Fatalf("failed to sign dev token: %v", err)
		}
		log.Printf("identity %s\n  token: %s", key, token)
	}

	log.Println("Seeding completed.")
}
