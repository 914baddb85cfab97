// Package relay implements the signaling server: it accepts peer
// connections, maintains the authoritative peer registry, broadcasts
// membership changes, and forwards directed messages between peers.
package relay

import (
	"sort"
	"sync"

	"github.com/driftbyte/driftbyte/pkg/protocol"
)

// peerConn holds one registered peer and its outbound queue. Envelopes are
// written by a dedicated goroutine so slow or dead peers never block the
// registry.
type peerConn struct {
	clientID  string
	send      chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func (pc *peerConn) close() {
	pc.closeOnce.Do(func() { close(pc.send) })
}

// Hub is the shared peer registry. It is the single source of truth for
// the broadcast peer list; all mutations are serialized behind its mutex.
type Hub struct {
	mu    sync.RWMutex
	peers map[string]*peerConn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		peers: make(map[string]*peerConn),
	}
}

// Add registers a peer and starts its writer goroutine. The send function
// performs the actual connection write; when it fails the writer stops and
// queued envelopes are dropped. A duplicate clientID replaces the previous
// registration (last write wins). Add returns a remove function that
// deregisters the peer and stops its writer.
func (h *Hub) Add(clientID string, send func(env protocol.Envelope) error) (remove func()) {
	pc := &peerConn{
		clientID: clientID,
		send:     make(chan protocol.Envelope, 64),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(pc.done)
		for env := range pc.send {
			if err := send(env); err != nil {
				return
			}
		}
	}()

	h.mu.Lock()
	if old, exists := h.peers[clientID]; exists {
		old.close()
	}
	h.peers[clientID] = pc
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		// Only deregister if this registration is still the active one.
		// The close happens under the write lock so queue sends, which
		// hold the read lock, never race a closed channel.
		if h.peers[clientID] == pc {
			delete(h.peers, clientID)
		}
		pc.close()
		h.mu.Unlock()

		<-pc.done
	}
}

// List returns the registered client IDs in sorted order.
func (h *Hub) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast queues an envelope for every registered peer. Sends are
// non-blocking: a peer whose queue is full misses the envelope rather than
// stalling the rest.
func (h *Hub) Broadcast(env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, pc := range h.peers {
		select {
		case pc.send <- env:
		default:
		}
	}
}

// SendTo queues an envelope for exactly one peer. It returns false when
// the peer is not registered.
func (h *Hub) SendTo(clientID string, env protocol.Envelope) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	pc, ok := h.peers[clientID]
	if !ok {
		return false
	}
	select {
	case pc.send <- env:
	default:
	}
	return true
}
