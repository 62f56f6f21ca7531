// Command mint-token signs a bearer token for local testing and operations.
//
//	mint-token -type student -user 6f1c...   # prints the JWT
//
// The signing secret comes from JWT_SECRET; when unset it is read from the terminal.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		tokenType string
		userID    string
	)
	flag.StringVar(&tokenType, "type", "student", "Token type: student or admin")
	flag.StringVar(&userID, "user", "", "User UUID (default: random)")
	flag.Parse()

	cfg := config.Load()
	if os.Getenv("JWT_SECRET") == "" {
		secret, err := readSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.JWTSecret = secret
	}

	id := uuid.New()
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid user id: %v\n", err)
			os.Exit(2)
		}
		id = parsed
	}

	token, err := service.NewIdentityService(cfg).GenerateToken(service.TokenType(tokenType), id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "user_id=%s type=%s expires_in=%s\n", id, tokenType, cfg.JWTExpiry)
	fmt.Println(token)
}

func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("JWT_SECRET is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "JWT secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("empty secret")
	}
	return secret, nil
}
