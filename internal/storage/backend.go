// Package storage defines the boundary the reassembly engine persists
// through. Chunk bytes arrive encrypted and are written at precomputed
// offsets; final verification and assembly happen behind VerifyAndFinalize.
package storage

// Backend persists chunk payloads and produces the completed file.
//
// WriteChunk must be safe for concurrent calls targeting disjoint offsets
// of the same destination path.
type Backend interface {
	// WriteChunk persists data at the given byte offset relative to the
	// destination path.
	WriteChunk(path string, offset int64, data []byte) error

	// VerifyAndFinalize performs final integrity verification and produces
	// the completed file at the destination path.
	VerifyAndFinalize(transferID, path string) error
}
