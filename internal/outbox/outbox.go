// Package outbox buffers envelopes submitted while no relay connection is
// open. Messages are released strictly in submission order once a
// connection becomes available.
package outbox

import (
	"sync"

	"github.com/driftbyte/driftbyte/pkg/protocol"
)

// Queue is an unbounded FIFO buffer of envelopes awaiting delivery.
// It is safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []protocol.Envelope
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends an envelope to the back of the queue.
func (q *Queue) Push(env protocol.Envelope) {
	q.mu.Lock()
	q.items = append(q.items, env)
	q.mu.Unlock()
}

// Drain removes and returns all queued envelopes in FIFO order. The queue
// is empty afterwards.
func (q *Queue) Drain() []protocol.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
