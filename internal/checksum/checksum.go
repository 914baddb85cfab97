// Package checksum computes and compares content digests for chunk
// payloads. Chunks arrive already encrypted, so digests cover the encrypted
// bytes as transmitted.
package checksum

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Sum returns the hex-encoded BLAKE3-256 digest of data.
func Sum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Matches reports whether data hashes to want. An empty want always
// matches: manifests may omit checksums for individual chunks.
func Matches(data []byte, want string) bool {
	if want == "" {
		return true
	}
	return strings.EqualFold(Sum(data), want)
}
