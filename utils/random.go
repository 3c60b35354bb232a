package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateCode returns n random bytes as an upper-case hex string.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateLockID returns a fresh identifier for a slot lock.
func GenerateLockID() (string, error) {
	code, err := GenerateCode(12)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("lock_%s", strings.ToLower(code)), nil
}

// GenerateOrderID returns a payment order identifier scoped to a user.
func GenerateOrderID(userID string) (string, error) {
	code, err := GenerateCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("order_%s_%s", userID, strings.ToLower(code)), nil
}
