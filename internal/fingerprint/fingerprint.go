// Package fingerprint computes content fingerprints for exact-duplicate
// detection. The digest is an equality key only, never a similarity key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize lower-cases and trims the text so trivially different reports of
// the same issue ("Mouse Broken" vs "mouse broken ") collapse to one key.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Digest returns the hex SHA-256 of the normalized text. Collision resistance
// is a correctness requirement here: two different incident reports must
// never share a digest, because the digest is used to reuse classifications.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
