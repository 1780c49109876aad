package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes computes the content fingerprint used for duplicate detection.
// Same bytes always produce the same digest regardless of platform; the
// empty input hashes to the SHA-256 digest of the empty string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
