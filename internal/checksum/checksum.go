// Package checksum computes the content digests stored in the catalog and
// served as entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Match reports whether data hashes to want. An empty want matches anything.
func Match(data []byte, want string) bool {
	return want == "" || Sum(data) == want
}
