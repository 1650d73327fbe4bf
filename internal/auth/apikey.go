package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// KeyPrefix is the prefix of generated server keys
	KeyPrefix = "csk_"
	// KeyLength is the length of the random part of the key
	KeyLength = 32
)

// GenerateAPIKey generates a new server API key.
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(bytes), nil
}

// HashAPIKey hashes an API key so keys are compared at a fixed length.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// KeyID is a short public identifier of a key, safe to log
func KeyID(key string) string {
	return HashAPIKey(key)[:8]
}
