// seed inserts development users for local testing.
// Idempotent: users whose email already exists are skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/db/migrate"
	"authcore/internal/security"
	userdomain "authcore/internal/user/domain"
	userrepo "authcore/internal/user/repository"
)

const devPassword = "password123"

type seedUser struct {
	name  string
	email string
	phone string
	twoFA bool
}

var seedUsers = []seedUser{
	// Logs straight in with a password; handy for scripting the bearer routes.
	{name: "Dev User", email: "dev@example.com", twoFA: false},
	{name: "Member User", email: "member@example.com", phone: "+15550100", twoFA: true},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	conn, err := db.Connect(cfg.StorageDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Run(conn.MigrateURL, "up"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	users := userrepo.NewSQLRepository(conn.DB, conn.Dialect)
	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	for _, su := range seedUsers {
		err := users.Create(ctx, &userdomain.User{
			ID:           uuid.New().String(),
			Name:         su.name,
			Email:        su.email,
			Phone:        su.phone,
			PasswordHash: passwordHash,
			Is2FAEnabled: su.twoFA,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		switch {
		case errors.Is(err, userrepo.ErrDuplicateEmail):
			log.Printf("%s already exists; skipping", su.email)
			continue
		case err != nil:
			log.Fatalf("create %s: %v", su.email, err)
		}
		fmt.Printf("Login: %s / %s (2FA %v)\n", su.email, devPassword, su.twoFA)
	}
	log.Println("Seed completed.")
}
