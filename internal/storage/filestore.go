package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const partSuffix = ".part"

// FileBackend is the default Backend: chunks accumulate in a part file next
// to the destination, and finalize renames it into place. Writes at
// disjoint offsets are safe concurrently because WriteAt does not move a
// shared file cursor.
type FileBackend struct{}

// NewFileBackend creates a filesystem-backed storage backend.
func NewFileBackend() *FileBackend {
	return &FileBackend{}
}

var _ Backend = (*FileBackend)(nil)

// WriteChunk writes data at offset into the part file for path, creating
// the part file and parent directories on first write.
func (f *FileBackend) WriteChunk(path string, offset int64, data []byte) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	file, err := os.OpenFile(path+partSuffix, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open part file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write chunk at offset %d: %w", offset, err)
	}
	return nil
}

// VerifyAndFinalize promotes the part file to the destination path. A
// missing part file means no chunk was ever persisted and is an error.
func (f *FileBackend) VerifyAndFinalize(transferID, path string) error {
	part := path + partSuffix
	if _, err := os.Stat(part); err != nil {
		return fmt.Errorf("finalize transfer %s: %w", transferID, err)
	}
	if err := os.Rename(part, path); err != nil {
		return fmt.Errorf("finalize transfer %s: %w", transferID, err)
	}
	return nil
}
