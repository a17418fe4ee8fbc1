// Command seed-test-users creates two demo organizations, each with an
// owner, an admin, and a regular user, to exercise the full role hierarchy
// during manual testing.
//
// Roles seeded per organization: owner (via signup), admin, user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/audit"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/storage/postgres"
)

type orgSeed struct {
	name         string
	ownerEmail   string
	adminEmail   string
	userEmail    string
}

func main() {
	flag.Parse()

	cfg := config.MustLoad()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("create store: %v", err)
	}
	defer store.Close()

	svc := identity.New(store, audit.NewNoopEmitter(), identity.Config{
		JWTSecret:          cfg.JWTSecret,
		AccessTokenTTL:     cfg.AccessTokenTTL(),
		RefreshTokenTTL:    cfg.RefreshTokenTTL(),
		LockoutMaxAttempts: cfg.LockoutMaxAttempts,
		LockoutDuration:    cfg.LockoutDuration(),
	})

	orgs := []orgSeed{
		{name: "Acme Ltd", ownerEmail: "owner@acme.example.com", adminEmail: "admin@acme.example.com", userEmail: "user@acme.example.com"},
		{name: "JoeBlogs Ltd", ownerEmail: "owner@joeblogs.example.com", adminEmail: "admin@joeblogs.example.com", userEmail: "user@joeblogs.example.com"},
	}

	const password = "TestSeed2024!Secure"

	for _, o := range orgs {
		fmt.Printf("\nCreating %s...\n", o.name)
		org, clientID, clientSecret, err := svc.RegisterOrg(ctx, o.name)
		if err != nil {
			log.Fatalf("register org %s: %v", o.name, err)
		}
		fmt.Printf("  org_id: %s\n  client_id: %s\n  client_secret: %s\n", org.ID, clientID, clientSecret)

		owner, err := svc.Signup(ctx, org.ID, o.ownerEmail, password)
		if err != nil {
			log.Fatalf("seed owner for %s: %v", o.name, err)
		}
		fmt.Printf("  owner: %s (role: %s)\n", o.ownerEmail, owner.Role)

		if err := createWithRole(ctx, svc, org.ID, owner.ID, o.adminEmail, password, postgres.RoleAdmin); err != nil {
			log.Fatalf("seed admin for %s: %v", o.name, err)
		}
		fmt.Printf("  admin: %s\n", o.adminEmail)

		if err := createWithRole(ctx, svc, org.ID, owner.ID, o.userEmail, password, postgres.RoleUser); err != nil {
			log.Fatalf("seed user for %s: %v", o.name, err)
		}
		fmt.Printf("  user: %s\n", o.userEmail)
	}

	fmt.Printf("\nAll test users seeded with password: %s\n", password)
}

func createWithRole(ctx context.Context, svc *identity.Service, orgID, actorID uuid.UUID, email, password, role string) error {
	_, err := svc.CreateUser(ctx, orgID, email, password, role)
	return err
}
