package storage

import (
	"errors"
	"sync"
)

// MockBackend is an in-memory Backend implementation for testing. It keeps
// every write and lets tests inject failures on either operation.
type MockBackend struct {
	mu sync.Mutex

	writes        []MockWrite
	finalized     []string
	failWrites    bool
	failFinalize  bool
	finalizeCalls int
}

// MockWrite records one WriteChunk call.
type MockWrite struct {
	Path   string
	Offset int64
	Data   []byte
}

// NewMockBackend creates an empty in-memory backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

var _ Backend = (*MockBackend)(nil)

var errMockFailure = errors.New("injected backend failure")

// FailWrites toggles failure injection for WriteChunk.
func (m *MockBackend) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// FailFinalize toggles failure injection for VerifyAndFinalize.
func (m *MockBackend) FailFinalize(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFinalize = fail
}

// WriteChunk records the write, or fails if failure injection is on.
func (m *MockBackend) WriteChunk(path string, offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errMockFailure
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.writes = append(m.writes, MockWrite{Path: path, Offset: offset, Data: buf})
	return nil
}

// VerifyAndFinalize records the finalize, or fails if failure injection is on.
func (m *MockBackend) VerifyAndFinalize(transferID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeCalls++
	if m.failFinalize {
		return errMockFailure
	}
	m.finalized = append(m.finalized, transferID)
	return nil
}

// Writes returns a copy of all recorded writes.
func (m *MockBackend) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// Finalized returns the transfer IDs finalized so far.
func (m *MockBackend) Finalized() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.finalized))
	copy(out, m.finalized)
	return out
}

// FinalizeCalls returns how many times VerifyAndFinalize was invoked,
// including failed attempts.
func (m *MockBackend) FinalizeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizeCalls
}
