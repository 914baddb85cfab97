package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftbyte/driftbyte/pkg/protocol"
)

// collector accumulates envelopes written by a hub writer goroutine.
type collector struct {
	mu   sync.Mutex
	envs []protocol.Envelope
}

func (c *collector) send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	return nil
}

func (c *collector) wait(t *testing.T, n int) []protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.envs) >= n {
			out := make([]protocol.Envelope, len(c.envs))
			copy(out, c.envs)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d envelopes", n)
	return nil
}

func TestHub_AddAndRemove(t *testing.T) {
	hub := NewHub()
	c := &collector{}

	remove := hub.Add("peer1", c.send)

	peers := hub.List()
	if len(peers) != 1 || peers[0] != "peer1" {
		t.Fatalf("List() = %v, want [peer1]", peers)
	}

	remove()

	if got := hub.List(); len(got) != 0 {
		t.Errorf("List() after remove = %v, want empty", got)
	}
}

func TestHub_ListSorted(t *testing.T) {
	hub := NewHub()
	noop := func(protocol.Envelope) error { return nil }

	hub.Add("charlie", noop)
	hub.Add("alice", noop)
	hub.Add("bob", noop)

	got := hub.List()
	want := []string{"alice", "bob", "charlie"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestHub_SendTo(t *testing.T) {
	hub := NewHub()
	c1 := &collector{}
	c2 := &collector{}
	hub.Add("peer1", c1.send)
	hub.Add("peer2", c2.send)

	env := protocol.Envelope{Type: protocol.TypeMessage, To: "peer2", From: "peer1"}
	if !hub.SendTo("peer2", env) {
		t.Fatal("SendTo(peer2) = false, want true")
	}

	got := c2.wait(t, 1)
	if got[0].From != "peer1" {
		t.Errorf("From = %s, want peer1", got[0].From)
	}

	// Exactly one recipient.
	time.Sleep(20 * time.Millisecond)
	c1.mu.Lock()
	if len(c1.envs) != 0 {
		t.Errorf("peer1 received %d envelopes, want 0", len(c1.envs))
	}
	c1.mu.Unlock()
}

func TestHub_SendToUnknownPeer(t *testing.T) {
	hub := NewHub()
	if hub.SendTo("ghost", protocol.Envelope{Type: protocol.TypeMessage}) {
		t.Error("SendTo(ghost) = true, want false")
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	c1 := &collector{}
	c2 := &collector{}
	c3 := &collector{}
	hub.Add("peer1", c1.send)
	hub.Add("peer2", c2.send)
	hub.Add("peer3", c3.send)

	hub.Broadcast(protocol.NewPeersEnvelope(hub.List()))

	for _, c := range []*collector{c1, c2, c3} {
		envs := c.wait(t, 1)
		if envs[0].Type != protocol.TypePeers {
			t.Errorf("Type = %s, want peers", envs[0].Type)
		}
		if len(envs[0].Peers) != 3 {
			t.Errorf("Peers = %v, want 3 entries", envs[0].Peers)
		}
	}
}

func TestHub_DuplicateClientIDLastWriteWins(t *testing.T) {
	hub := NewHub()
	old := &collector{}
	fresh := &collector{}

	removeOld := hub.Add("peer1", old.send)
	hub.Add("peer1", fresh.send)

	if got := hub.List(); len(got) != 1 {
		t.Fatalf("List() = %v, want single entry", got)
	}

	// The stale remove must not evict the replacement registration.
	removeOld()
	if got := hub.List(); len(got) != 1 {
		t.Fatalf("List() after stale remove = %v, want single entry", got)
	}

	hub.SendTo("peer1", protocol.Envelope{Type: protocol.TypeMessage, From: "x"})
	fresh.wait(t, 1)
}

func TestHub_SendFailureStopsWriter(t *testing.T) {
	hub := NewHub()
	failing := func(protocol.Envelope) error { return errors.New("send failed") }
	remove := hub.Add("peer1", failing)

	hub.SendTo("peer1", protocol.Envelope{Type: protocol.TypeMessage})

	// Remove must not hang even though the writer bailed out early.
	done := make(chan struct{})
	go func() {
		remove()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("remove() hung after writer failure")
	}
}
