// Package sha256 provides the content fingerprints used for byte and text dedup.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumString hashes the UTF-8 bytes of s, so SumString(s) == Sum([]byte(s)).
func SumString(s string) string {
	return Sum([]byte(s))
}
