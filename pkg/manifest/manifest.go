// Package manifest describes the chunk layout of a single encrypted
// transfer: the logical file size plus one descriptor per chunk, ordered by
// index. The JSON field names are part of the peer-to-peer contract.
package manifest

import (
	"errors"
	"fmt"
)

// ChunkDescriptor describes one fixed-boundary slice of an encrypted
// transfer. Checksum, when present, is the hex-encoded digest of the
// encrypted chunk payload. Descriptors are immutable once part of a
// manifest.
type ChunkDescriptor struct {
	Index         int    `json:"index"`
	EncryptedSize int64  `json:"encryptedSize"`
	Checksum      string `json:"checksum,omitempty"`
}

// Manifest is the ordered description of all chunks composing one transfer.
// The sum of encrypted sizes need not equal FileSize: encrypted framing may
// differ from the plaintext size.
type Manifest struct {
	FileSize int64             `json:"fileSize"`
	Chunks   []ChunkDescriptor `json:"chunks"`
}

// Validate checks structural invariants: a positive file size, positive
// chunk sizes, and chunk indices forming the contiguous range [0, len).
func (m Manifest) Validate() error {
	if m.FileSize <= 0 {
		return errors.New("file size must be positive")
	}
	if len(m.Chunks) == 0 {
		return errors.New("manifest has no chunks")
	}
	for i, c := range m.Chunks {
		if c.Index != i {
			return fmt.Errorf("chunk at position %d has index %d, want %d", i, c.Index, i)
		}
		if c.EncryptedSize <= 0 {
			return fmt.Errorf("chunk %d has non-positive size %d", c.Index, c.EncryptedSize)
		}
	}
	return nil
}

// Offsets returns the byte offset of each chunk within the assembled
// encrypted file: the exclusive prefix sum of encrypted sizes in index
// order. Offsets[0] is always 0. Precomputing these makes chunk placement
// O(1) regardless of arrival order.
func (m Manifest) Offsets() []int64 {
	offsets := make([]int64, len(m.Chunks))
	var sum int64
	for i, c := range m.Chunks {
		offsets[i] = sum
		sum += c.EncryptedSize
	}
	return offsets
}

// TotalEncryptedSize returns the sum of encrypted chunk sizes.
func (m Manifest) TotalEncryptedSize() int64 {
	var sum int64
	for _, c := range m.Chunks {
		sum += c.EncryptedSize
	}
	return sum
}
