package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/your-org/facecheck/internal/auth"
	"github.com/your-org/facecheck/internal/config"
)

// token mints bearer tokens for kiosks and operators, signed with the
// API's server.jwt_secret.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	subject := flag.String("subject", "", "token subject, e.g. the kiosk id")
	roleName := flag.String("role", string(auth.RoleKiosk), "kiosk or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime; 0 never expires")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Server.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "server.jwt_secret (or FD_JWT_SECRET) is not set")
		os.Exit(1)
	}
	if *subject == "" {
		fmt.Fprintln(os.Stderr, "-subject is required")
		os.Exit(2)
	}
	role, err := auth.ParseRole(*roleName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if *ttl < 0 {
		fmt.Fprintln(os.Stderr, "-ttl must not be negative")
		os.Exit(2)
	}

	tok, err := auth.IssueToken(cfg.Server.JWTSecret, *subject, role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
	if *ttl > 0 {
		fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	}
}
