package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/service"
	"golang.org/x/term"
)

// hash-token prints the bcrypt hash of a teacher login token for
// TEACHER_TOKEN_HASH, so the plain token never has to live in the environment.
func main() {
	cfg := config.Load()

	fmt.Println("=== Hash Teacher Token ===")

	fmt.Print("Enter Token: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading token")
		os.Exit(1)
	}

	fmt.Print("Confirm Token: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading token")
		os.Exit(1)
	}

	token := strings.TrimSpace(string(first))
	if token == "" {
		fmt.Println("Error: Token is required")
		os.Exit(1)
	}
	if token != strings.TrimSpace(string(second)) {
		fmt.Println("Error: Tokens do not match")
		os.Exit(1)
	}

	hash, err := service.HashToken(token, cfg.BcryptCost)
	if err != nil {
		fmt.Printf("Error hashing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("TEACHER_TOKEN_HASH=%s\n", hash)
}
