package reassembly

import (
	"sync"

	"github.com/driftbyte/driftbyte/pkg/manifest"
)

// transfer is the per-transfer reassembly state. Its mutex serializes
// chunk acceptance against finalization for the same transfer; chunks of
// different transfers never contend.
type transfer struct {
	mu sync.Mutex

	id       string
	manifest manifest.Manifest
	destPath string
	offsets  []int64

	received  *bitmap
	corrupted map[int]struct{}
}

// Registry holds all active transfers, keyed by transfer ID. It is an
// explicit object rather than process-global state so tests and services
// can own isolated instances. Entries live from Init until a successful
// Finalize removes them.
type Registry struct {
	mu        sync.RWMutex
	transfers map[string]*transfer
}

// NewRegistry creates an empty transfer registry.
func NewRegistry() *Registry {
	return &Registry{
		transfers: make(map[string]*transfer),
	}
}

func (r *Registry) put(t *transfer) {
	r.mu.Lock()
	r.transfers[t.id] = t
	r.mu.Unlock()
}

func (r *Registry) get(id string) (*transfer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transfers[id]
	return t, ok
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.transfers, id)
	r.mu.Unlock()
}

// Len returns the number of active transfers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transfers)
}
