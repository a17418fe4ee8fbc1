// Command seed bootstraps a demo organization and owner account for
// development and testing.
//
// Purpose:
//   This utility registers a demo organization and its first owner user,
//   printing the org's client_id/client_secret pair and the owner's
//   credentials. It exists so a fresh Postgres instance can be made usable
//   for local development without manually calling the HTTP API.
//
// Dependencies:
//   - internal/config: Configuration (requires DATABASE_URL, JWT_SECRET)
//   - internal/identity: RegisterOrg/Signup business logic
//   - internal/storage/postgres: Data access layer
//
// Key Responsibilities:
//   - Register a new organization (client credentials are generated, never reused)
//   - Create its first owner user with the given or a generated password
//   - Print both sets of credentials for use against the running service
//
// Debugging Notes:
//   - Requires DATABASE_URL and JWT_SECRET environment variables
//   - Uses a 30s timeout for the whole run
//   - Generated passwords are printed to stdout (development only)
//
// Error Handling:
//   - Missing required configuration exits with a fatal error
//   - Store or business-logic failures exit with a fatal error
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/audit"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/config"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/identity"
	"github.com/otherjamesbrown/ai-aas/services/identity-service/internal/storage/postgres"
)

func main() {
	var (
		orgName      = flag.String("org-name", "Demo Organization", "Organization name")
		ownerEmail   = flag.String("owner-email", "owner@example.com", "Owner user email")
		ownerPassword = flag.String("owner-password", "", "Owner user password (default: generate random)")
	)
	flag.Parse()

	cfg := config.MustLoad()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

	org, clientID, clientSecret, err := svc.RegisterOrg(ctx, *orgName)
	if err != nil {
		log.Fatalf("register org: %v", err)
	}
	fmt.Printf("Organization: %s (ID: %s)\n", *orgName, org.ID)
	fmt.Printf("  client_id:     %s\n", clientID)
	fmt.Printf("  client_secret: %s\n", clientSecret)

	password := *ownerPassword
	if password == "" {
		password = generatePassword()
	}

	owner, err := svc.Signup(ctx, org.ID, *ownerEmail, password)
	if err != nil {
		log.Fatalf("signup owner: %v", err)
	}
	fmt.Printf("\nOwner user: %s (ID: %s, role: %s)\n", *ownerEmail, owner.ID, owner.Role)
	fmt.Printf("  password: %s\n", password)

	fmt.Println("\nSeed completed. Sign in via POST /v1/auth/login with an HMAC-signed request using the client credentials above.")
}

func generatePassword() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte('a' + (i*7+13)%26)
	}
	return string(b) + "123!"
}
