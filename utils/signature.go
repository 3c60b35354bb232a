package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hmac256 signs body with key using HMAC-SHA256 and returns the hex digest.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyHmac256 checks a hex HMAC-SHA256 signature in constant time.
func VerifyHmac256(body, key []byte, signature string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CompareHash checks a plaintext token against its stored bcrypt hash.
func CompareHash(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// GenerateHash bcrypt-hashes a token for storage in configuration.
func GenerateHash(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
