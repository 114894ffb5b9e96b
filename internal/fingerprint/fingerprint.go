// Package fingerprint derives the content fingerprint that keys every
// scan-result cache and the block list. Identical bytes always produce the
// same fingerprint regardless of filename, URL or source guild.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 digest of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
