package invites

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	TokenPrefix = "pli_"
	TokenBytes  = 32
)

// GenerateToken returns a fresh invite token and its SHA-256 hash. Only the
// hash is ever persisted; the plaintext token goes to the invitee once.
func GenerateToken() (token string, hash []byte, err error) {
	randomBytes := make([]byte, TokenBytes)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	token = TokenPrefix + encoded
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken returns the SHA-256 digest of a token string.
func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// ValidateTokenFormat reports whether token has the expected shape without
// touching storage.
func ValidateTokenFormat(token string) bool {
	if len(token) < len(TokenPrefix) {
		return false
	}

	if token[:len(TokenPrefix)] != TokenPrefix {
		return false
	}

	encoded := token[len(TokenPrefix):]
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	return len(decoded) == TokenBytes
}
