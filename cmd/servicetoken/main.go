package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pyanoxyz/agent-generator/internal/crypto"
	"github.com/pyanoxyz/agent-generator/pkg/auth"
)

// Issues a service token for the logs and admin endpoints, or a fresh
// ENCRYPTION_MASTER_KEY.
//
//	go run ./cmd/servicetoken -sub log-collector -role service -ttl 720h
//	go run ./cmd/servicetoken -master-key
func main() {
	subject := flag.String("sub", "", "token subject (caller name)")
	role := flag.String("role", auth.RoleService, "token role: service or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime (0 = no expiry)")
	masterKey := flag.Bool("master-key", false, "print a new ENCRYPTION_MASTER_KEY and exit")
	flag.Parse()

	if *masterKey {
		key, err := crypto.GenerateMasterKey()
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Println(key)
		return
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found: %v", err)
	}

	tokens, err := auth.NewServiceTokenAuth(os.Getenv("SERVICE_TOKEN_SECRET"))
	if err != nil {
		log.Fatalf("❌ SERVICE_TOKEN_SECRET: %v", err)
	}

	token, err := tokens.Issue(*subject, *role, *ttl)
	if err != nil {
		log.Fatalf("❌ Failed to issue token: %v", err)
	}

	expiry := "never"
	if *ttl > 0 {
		expiry = time.Now().Add(*ttl).UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(os.Stderr, "🔑 Issued %s token for %q (expires: %s)\n", *role, *subject, expiry)
	fmt.Println(token)
}
