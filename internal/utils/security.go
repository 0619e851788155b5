// Package utils provides shared utility functions across the application.
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// GenerateToken generates a secure random token.
func GenerateToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}

// HashToken returns the hex SHA-256 digest of a token. Sessions store the
// hash so a leaked database does not leak usable bearer tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum)
}
