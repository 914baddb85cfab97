// Package reassembly validates and positions independently-arriving
// encrypted chunks and drives finalization through the storage backend.
//
// Chunks carry explicit indices, so they may arrive and be accepted in any
// order: byte offsets are precomputed once per transfer and placement is
// O(1) per chunk. All accept/reject outcomes are boolean results rather
// than errors, leaving retry decisions to the caller.
package reassembly

import (
	"log/slog"
	"sort"

	"github.com/driftbyte/driftbyte/internal/checksum"
	"github.com/driftbyte/driftbyte/internal/storage"
	"github.com/driftbyte/driftbyte/pkg/manifest"
)

// Manager owns per-transfer reassembly state and persists accepted chunks
// through the storage backend.
type Manager struct {
	registry *Registry
	backend  storage.Backend
	logger   *slog.Logger
}

// NewManager creates a reassembly manager over the given registry and
// storage backend.
func NewManager(registry *Registry, backend storage.Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		backend:  backend,
		logger:   logger,
	}
}

// Snapshot is a read-only view of one transfer's state.
type Snapshot struct {
	TransferID      string
	Manifest        manifest.Manifest
	DestinationPath string
	Offsets         []int64
	Received        []int
	Corrupted       []int
}

// Init registers a fresh transfer, replacing any prior state for the same
// ID. Offsets are computed once as the exclusive prefix sum of encrypted
// chunk sizes. No I/O is performed.
func (m *Manager) Init(transferID string, man manifest.Manifest, destPath string) error {
	if err := man.Validate(); err != nil {
		return err
	}
	t := &transfer{
		id:        transferID,
		manifest:  man,
		destPath:  destPath,
		offsets:   man.Offsets(),
		received:  newBitmap(len(man.Chunks)),
		corrupted: make(map[int]struct{}),
	}
	m.registry.put(t)
	m.logger.Debug("transfer registered",
		"transfer_id", transferID, "chunks", len(man.Chunks), "dest", destPath)
	return nil
}

// Accept validates and persists one chunk. It returns false when the
// transfer is unknown, the index is out of range, the payload fails its
// declared checksum, or the backend write fails. A false outcome from a
// checksum mismatch records the index as corrupted; a false outcome from a
// backend failure mutates nothing, so the same chunk can be retried. A
// later successful accept clears a previously recorded corruption, keeping
// the received and corrupted sets disjoint.
func (m *Manager) Accept(transferID string, index int, data []byte) bool {
	t, ok := m.registry.get(transferID)
	if !ok {
		m.logger.Warn("chunk for unknown transfer", "transfer_id", transferID, "index", index)
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.manifest.Chunks) {
		m.logger.Warn("chunk index out of range",
			"transfer_id", transferID, "index", index, "chunks", len(t.manifest.Chunks))
		return false
	}

	desc := t.manifest.Chunks[index]
	if !checksum.Matches(data, desc.Checksum) {
		t.corrupted[index] = struct{}{}
		m.logger.Warn("chunk checksum mismatch", "transfer_id", transferID, "index", index)
		return false
	}

	if err := m.backend.WriteChunk(t.destPath, t.offsets[index], data); err != nil {
		m.logger.Error("chunk write failed",
			"transfer_id", transferID, "index", index, "error", err)
		return false
	}

	t.received.set(index)
	delete(t.corrupted, index)
	return true
}

// Finalize completes a transfer. It returns false without contacting the
// backend unless every chunk has been received. On backend success the
// transfer leaves the registry; on backend failure state stays intact so
// the caller can retry after corrective action.
func (m *Manager) Finalize(transferID, destPath string) bool {
	t, ok := m.registry.get(transferID)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.received.countSet() != len(t.manifest.Chunks) {
		m.logger.Warn("finalize on incomplete transfer",
			"transfer_id", transferID,
			"received", t.received.countSet(), "chunks", len(t.manifest.Chunks))
		return false
	}

	if err := m.backend.VerifyAndFinalize(transferID, destPath); err != nil {
		m.logger.Error("finalize failed", "transfer_id", transferID, "error", err)
		return false
	}

	m.registry.remove(transferID)
	m.logger.Info("transfer finalized", "transfer_id", transferID, "dest", destPath)
	return true
}

// State returns a snapshot of the transfer, or ok=false when the ID is
// unknown. It never mutates.
func (m *Manager) State(transferID string) (Snapshot, bool) {
	t, ok := m.registry.get(transferID)
	if !ok {
		return Snapshot{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	offsets := make([]int64, len(t.offsets))
	copy(offsets, t.offsets)

	corrupted := make([]int, 0, len(t.corrupted))
	for i := range t.corrupted {
		corrupted = append(corrupted, i)
	}
	sort.Ints(corrupted)

	return Snapshot{
		TransferID:      t.id,
		Manifest:        t.manifest,
		DestinationPath: t.destPath,
		Offsets:         offsets,
		Received:        t.received.indices(),
		Corrupted:       corrupted,
	}, true
}
