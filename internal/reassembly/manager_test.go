package reassembly

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftbyte/driftbyte/internal/checksum"
	"github.com/driftbyte/driftbyte/internal/storage"
	"github.com/driftbyte/driftbyte/pkg/manifest"
)

func newTestManager(t *testing.T) (*Manager, *storage.MockBackend) {
	t.Helper()
	backend := storage.NewMockBackend()
	return NewManager(NewRegistry(), backend, nil), backend
}

func evenManifest(chunks int, size int64) manifest.Manifest {
	m := manifest.Manifest{FileSize: int64(chunks) * size}
	for i := 0; i < chunks; i++ {
		m.Chunks = append(m.Chunks, manifest.ChunkDescriptor{Index: i, EncryptedSize: size})
	}
	return m
}

func TestInit_ComputesOffsets(t *testing.T) {
	mgr, _ := newTestManager(t)

	require.NoError(t, mgr.Init("t1", evenManifest(3, 1000), "/tmp/out.bin"))

	snap, ok := mgr.State("t1")
	require.True(t, ok)
	assert.Equal(t, []int64{0, 1000, 2000}, snap.Offsets)
	assert.Empty(t, snap.Received)
	assert.Empty(t, snap.Corrupted)
	assert.Equal(t, "/tmp/out.bin", snap.DestinationPath)
}

func TestInit_RejectsInvalidManifest(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.Init("t1", manifest.Manifest{FileSize: 1}, "/tmp/out.bin"))
}

func TestInit_ReplacesPriorState(t *testing.T) {
	mgr, _ := newTestManager(t)

	require.NoError(t, mgr.Init("t1", evenManifest(2, 10), "/tmp/a"))
	require.True(t, mgr.Accept("t1", 0, make([]byte, 10)))

	require.NoError(t, mgr.Init("t1", evenManifest(3, 10), "/tmp/b"))

	snap, ok := mgr.State("t1")
	require.True(t, ok)
	assert.Empty(t, snap.Received)
	assert.Equal(t, "/tmp/b", snap.DestinationPath)
	assert.Len(t, snap.Manifest.Chunks, 3)
}

func TestAccept_UnknownTransfer(t *testing.T) {
	mgr, backend := newTestManager(t)
	assert.False(t, mgr.Accept("nope", 0, []byte("x")))
	assert.Empty(t, backend.Writes())
}

func TestAccept_IndexOutOfRange(t *testing.T) {
	mgr, backend := newTestManager(t)
	require.NoError(t, mgr.Init("t1", evenManifest(2, 10), "/tmp/out"))

	assert.False(t, mgr.Accept("t1", -1, []byte("x")))
	assert.False(t, mgr.Accept("t1", 2, []byte("x")))

	snap, _ := mgr.State("t1")
	assert.Empty(t, snap.Received)
	assert.Empty(t, snap.Corrupted)
	assert.Empty(t, backend.Writes())
}

func TestAccept_ChecksumMismatch(t *testing.T) {
	mgr, backend := newTestManager(t)

	m := evenManifest(2, 4)
	m.Chunks[1].Checksum = checksum.Sum([]byte("good"))
	require.NoError(t, mgr.Init("t1", m, "/tmp/out"))

	assert.False(t, mgr.Accept("t1", 1, []byte("evil")))

	snap, _ := mgr.State("t1")
	assert.Empty(t, snap.Received)
	assert.Equal(t, []int{1}, snap.Corrupted)
	assert.Empty(t, backend.Writes(), "corrupt chunks are never persisted")
}

func TestAccept_Success(t *testing.T) {
	mgr, backend := newTestManager(t)

	m := evenManifest(3, 4)
	m.Chunks[2].Checksum = checksum.Sum([]byte("tail"))
	require.NoError(t, mgr.Init("t1", m, "/tmp/out"))

	// Out of order and with/without declared checksums.
	assert.True(t, mgr.Accept("t1", 2, []byte("tail")))
	assert.True(t, mgr.Accept("t1", 0, []byte("head")))

	snap, _ := mgr.State("t1")
	assert.Equal(t, []int{0, 2}, snap.Received)
	assert.Empty(t, snap.Corrupted)

	writes := backend.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, int64(8), writes[0].Offset)
	assert.Equal(t, int64(0), writes[1].Offset)
}

func TestAccept_BackendFailureAllowsRetry(t *testing.T) {
	mgr, backend := newTestManager(t)
	require.NoError(t, mgr.Init("t1", evenManifest(1, 4), "/tmp/out"))

	backend.FailWrites(true)
	assert.False(t, mgr.Accept("t1", 0, []byte("data")))

	snap, _ := mgr.State("t1")
	assert.Empty(t, snap.Received, "failed write must not mark the chunk received")
	assert.Empty(t, snap.Corrupted, "failed write is not a corruption")

	backend.FailWrites(false)
	assert.True(t, mgr.Accept("t1", 0, []byte("data")))

	snap, _ = mgr.State("t1")
	assert.Equal(t, []int{0}, snap.Received)
}

func TestAccept_RetryAfterCorruptionClearsIt(t *testing.T) {
	mgr, _ := newTestManager(t)

	m := evenManifest(1, 4)
	m.Chunks[0].Checksum = checksum.Sum([]byte("good"))
	require.NoError(t, mgr.Init("t1", m, "/tmp/out"))

	assert.False(t, mgr.Accept("t1", 0, []byte("evil")))
	assert.True(t, mgr.Accept("t1", 0, []byte("good")))

	snap, _ := mgr.State("t1")
	assert.Equal(t, []int{0}, snap.Received)
	assert.Empty(t, snap.Corrupted, "received and corrupted sets must stay disjoint")
}

func TestFinalize_IncompleteTransfer(t *testing.T) {
	mgr, backend := newTestManager(t)
	require.NoError(t, mgr.Init("t1", evenManifest(2, 4), "/tmp/out"))
	require.True(t, mgr.Accept("t1", 0, []byte("aaaa")))

	assert.False(t, mgr.Finalize("t1", "/tmp/out"))
	assert.Zero(t, backend.FinalizeCalls(), "incomplete finalize must not contact the backend")

	_, ok := mgr.State("t1")
	assert.True(t, ok, "state survives a failed finalize")
}

func TestFinalize_UnknownTransfer(t *testing.T) {
	mgr, backend := newTestManager(t)
	assert.False(t, mgr.Finalize("nope", "/tmp/out"))
	assert.Zero(t, backend.FinalizeCalls())
}

func TestFinalize_Success(t *testing.T) {
	mgr, backend := newTestManager(t)
	require.NoError(t, mgr.Init("t1", evenManifest(2, 4), "/tmp/out"))
	require.True(t, mgr.Accept("t1", 1, []byte("bbbb")))
	require.True(t, mgr.Accept("t1", 0, []byte("aaaa")))

	assert.True(t, mgr.Finalize("t1", "/tmp/out"))
	assert.Equal(t, []string{"t1"}, backend.Finalized())

	_, ok := mgr.State("t1")
	assert.False(t, ok, "successful finalize removes the transfer")
}

func TestFinalize_BackendFailurePreservesState(t *testing.T) {
	mgr, backend := newTestManager(t)
	require.NoError(t, mgr.Init("t1", evenManifest(1, 4), "/tmp/out"))
	require.True(t, mgr.Accept("t1", 0, []byte("aaaa")))

	backend.FailFinalize(true)
	assert.False(t, mgr.Finalize("t1", "/tmp/out"))

	_, ok := mgr.State("t1")
	require.True(t, ok, "state survives a backend finalize failure")

	backend.FailFinalize(false)
	assert.True(t, mgr.Finalize("t1", "/tmp/out"))
}

func TestAccept_ConcurrentChunks(t *testing.T) {
	mgr, backend := newTestManager(t)

	const chunks = 64
	require.NoError(t, mgr.Init("t1", evenManifest(chunks, 8), "/tmp/out"))

	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf("chunk-%02d", i))
			assert.True(t, mgr.Accept("t1", i, data))
		}(i)
	}
	wg.Wait()

	snap, _ := mgr.State("t1")
	assert.Len(t, snap.Received, chunks)
	assert.True(t, mgr.Finalize("t1", "/tmp/out"))
	assert.Len(t, backend.Writes(), chunks)
}
