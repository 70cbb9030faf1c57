package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintLength is the number of hex characters kept by Fingerprint.
const FingerprintLength = 12

// HashToken returns the hex SHA-256 of token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Fingerprint identifies a credential in logs without revealing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	return HashToken(token)[:FingerprintLength]
}
