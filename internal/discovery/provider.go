// Package discovery locates a relay endpoint without prior configuration.
// The wire details of the underlying mechanism are deliberately opaque to
// callers: a provider either yields a usable endpoint URL or an error.
package discovery

import "context"

// Provider resolves a relay endpoint. Implementations must respect the
// context deadline.
type Provider interface {
	// Discover returns a websocket endpoint URL for a reachable relay.
	Discover(ctx context.Context) (string, error)
}
