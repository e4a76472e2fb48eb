// seed inserts development sample users for local testing. Run via
// ./scripts/seed.sh or go run ./cmd/seed. Idempotent: existing users are kept.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/majafary/ciam-claude-sub001/internal/config"
	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/esign"
	esignrepo "github.com/majafary/ciam-claude-sub001/internal/esign/repository"
	identitydomain "github.com/majafary/ciam-claude-sub001/internal/identity/domain"
	identityrepo "github.com/majafary/ciam-claude-sub001/internal/identity/repository"
	"github.com/majafary/ciam-claude-sub001/internal/security"
)

const seedPassword = "password"

type seedUser struct {
	username string
	status   identitydomain.UserStatus
	// esignDoc, when set, leaves a pending document for the user's next login.
	esignDoc string
}

var seedUsers = []seedUser{
	{username: "mfauser", status: identitydomain.UserStatusActive},
	{username: "lockeduser", status: identitydomain.UserStatusLocked},
	{username: "mfalockeduser", status: identitydomain.UserStatusMFALocked},
	{username: "esignuser", status: identitydomain.UserStatusActive, esignDoc: "terms-v2"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	users := identityrepo.NewPostgresRepository(pool)
	gate := esign.NewGate(
		esignrepo.NewPostgresRequirementRepository(pool),
		esignrepo.NewPostgresAcceptanceRepository(pool),
	)

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(seedPassword))
	if err != nil {
		log.Fatalf("hash: %v", err)
	}

	for _, su := range seedUsers {
		existing, err := users.GetByUsername(ctx, su.username)
		if err != nil {
			log.Fatalf("lookup %s: %v", su.username, err)
		}
		if existing == nil {
			now := time.Now().UTC()
			u := &identitydomain.User{
				Cupid:        "cupid-" + su.username,
				GUID:         "guid-" + su.username,
				Username:     su.username,
				Email:        su.username + "@example.com",
				Phone:        "15551234567",
				PasswordHash: hash,
				Roles:        []string{"customer"},
				Status:       su.status,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := users.Create(ctx, u); err != nil {
				log.Fatalf("create %s: %v", su.username, err)
			}
			fmt.Printf("created %s (%s)\n", su.username, su.status)
		} else {
			fmt.Printf("exists %s\n", su.username)
		}
		if su.esignDoc != "" {
			if err := gate.Require(ctx, "cupid-"+su.username, su.esignDoc, true, "seeded terms update"); err != nil {
				log.Fatalf("esign requirement for %s: %v", su.username, err)
			}
			fmt.Printf("esign requirement %s -> %s\n", su.username, su.esignDoc)
		}
	}
	fmt.Println("seed complete; all passwords are", seedPassword)
}
