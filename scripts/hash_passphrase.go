package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Quick utility to generate the bcrypt hash for ACCESS_PASSPHRASE_HASH
// Usage: go run scripts/hash_passphrase.go <passphrase>
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/hash_passphrase.go <passphrase>")
		os.Exit(1)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error generating hash: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Bcrypt Hash: %s\n", string(hashed))
	fmt.Printf("\nSet it on the service with:\n")
	fmt.Printf("  ACCESS_PASSPHRASE_HASH='%s'\n", string(hashed))
}
