// Package signaling manages one peer's connection to a relay: connection
// establishment (optionally through a discovery provider), observable
// connection and peer-list state, best-effort sends with an offline outbox,
// and transparent reconnection after an established connection drops.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftbyte/driftbyte/internal/discovery"
	"github.com/driftbyte/driftbyte/internal/observe"
	"github.com/driftbyte/driftbyte/internal/outbox"
	"github.com/driftbyte/driftbyte/pkg/protocol"
)

const writeTimeout = 10 * time.Second

// Keepalive parameters. Package variables so tests can shorten them.
var (
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// MessageHandler receives relayed payloads. from is the sender's client ID
// as stamped by the relay.
type MessageHandler func(from string, payload json.RawMessage)

// Config controls a Client.
type Config struct {
	// URL is the relay endpoint. http(s) schemes are rewritten to ws(s),
	// and a bare host gets the /ws path appended.
	URL string

	// PreferDiscovery consults the discovery provider for an endpoint
	// before falling back to URL.
	PreferDiscovery bool

	// Provider resolves relay endpoints when PreferDiscovery is set.
	Provider discovery.Provider

	// DialTimeout bounds the websocket handshake. Zero means no timeout;
	// bounding the call is then the caller's responsibility.
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Client is one peer's signaling connection. Its client ID is generated at
// construction and stable for the instance's lifetime.
type Client struct {
	cfg      Config
	clientID string
	logger   *slog.Logger

	status *observe.Value[bool]
	peers  *observe.Value[[]string]
	queue  *outbox.Queue

	mu              sync.Mutex
	conn            *websocket.Conn
	gen             int // bumped per connection; stale read loops see a mismatch
	onMessage       MessageHandler
	reconnectCancel context.CancelFunc
	closed          bool
}

// NewClient creates a client with a fresh random identifier.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Client{
		cfg:      cfg,
		clientID: id,
		logger:   logger.With("client_id", id),
		status:   observe.NewValue(false),
		peers:    observe.NewValue([]string{}),
		queue:    outbox.New(),
	}
}

// ClientID returns the identifier generated at construction.
func (c *Client) ClientID() string {
	return c.clientID
}

// Status is the observable connection status.
func (c *Client) Status() *observe.Value[bool] {
	return c.status
}

// Peers is the observable peer list, replaced wholesale on every peers
// envelope from the relay.
func (c *Client) Peers() *observe.Value[[]string] {
	return c.peers
}

// IsConnected reports whether a relay connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SetOnMessage installs handler as the sole receiver for relayed payloads,
// replacing any previous handler.
func (c *Client) SetOnMessage(handler MessageHandler) {
	c.mu.Lock()
	c.onMessage = handler
	c.mu.Unlock()
}

// Connect attempts exactly one connection establishment. On failure the
// error is the caller-visible signal and the connection status stays
// disconnected; no retry happens within the call. Once an established
// connection later drops, the client reconnects on its own with backoff
// until Disconnect cancels it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.mu.Unlock()

	return c.establish(ctx)
}

// establish performs one full connect attempt: endpoint resolution, dial,
// adoption of the new connection, and outbox drain.
func (c *Client) establish(ctx context.Context) error {
	endpoint, err := c.resolveEndpoint(ctx)
	if err != nil {
		return err
	}
	endpoint, err = withClientID(endpoint, c.clientID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect to relay %s: %w", endpoint, err)
	}

	// Keepalive: pings extend the read deadline through the pong handler,
	// so a silently dead link times the read loop out instead of blocking
	// it forever.
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("client disconnected during connect")
	}
	if c.conn != nil {
		// A concurrent establish won the race; keep its connection.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	if c.reconnectCancel != nil {
		// Adopting a connection retires the reconnect loop that dialed
		// it. Only this path releases the loop's context, so a loop can
		// never cancel a successor spawned by a later drop.
		c.reconnectCancel()
		c.reconnectCancel = nil
	}

	// Drain queued messages FIFO before any newly submitted message can
	// reach the socket; Send contends on the same mutex.
	c.drainLocked(conn)
	c.mu.Unlock()

	c.status.Set(true)

	// A Disconnect that completed between the unlock and the status update
	// must remain the final observable transition.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.status.Set(false)
		return fmt.Errorf("client disconnected during connect")
	}
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	go c.pingLoop(conn, gen)

	c.logger.Info("connected to relay", "endpoint", endpoint)
	return nil
}

func (c *Client) resolveEndpoint(ctx context.Context) (string, error) {
	if c.cfg.PreferDiscovery && c.cfg.Provider != nil {
		endpoint, err := c.cfg.Provider.Discover(ctx)
		if err == nil && endpoint != "" {
			return endpoint, nil
		}
		if err != nil {
			c.logger.Debug("discovery failed, falling back to relay URL", "error", err)
		}
	}
	if c.cfg.URL == "" {
		return "", fmt.Errorf("no relay endpoint configured")
	}
	return normalizeEndpoint(c.cfg.URL)
}

// normalizeEndpoint accepts http(s) or ws(s) URLs and returns a websocket
// URL with the /ws path in place.
func normalizeEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse relay URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay URL scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// withClientID stamps our identity on the endpoint query so the relay
// registers us under the same ID across reconnects.
func withClientID(endpoint, clientID string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse relay endpoint: %w", err)
	}
	query := u.Query()
	query.Set("client_id", clientID)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Send transmits the envelope when connected and queues it otherwise. It
// never fails observably: delivery is best effort and deferred through the
// outbox while no connection is open.
func (c *Client) Send(env protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	env.From = c.clientID
	if c.conn == nil {
		c.queue.Push(env)
		return
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(env); err != nil {
		// The connection is going away; the read loop will notice and
		// trigger reconnection. Keep the message for redelivery.
		c.logger.Warn("send failed, queuing message", "error", err)
		c.queue.Push(env)
	}
}

// drainLocked flushes the outbox over conn. Caller holds c.mu. Messages
// that fail to write go back on the queue in order.
func (c *Client) drainLocked(conn *websocket.Conn) {
	queued := c.queue.Drain()
	for i, env := range queued {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(env); err != nil {
			c.logger.Warn("outbox drain interrupted", "sent", i, "queued", len(queued), "error", err)
			for _, rest := range queued[i:] {
				c.queue.Push(rest)
			}
			return
		}
	}
	if len(queued) > 0 {
		c.logger.Debug("outbox drained", "messages", len(queued))
	}
}

// readLoop consumes envelopes until the connection drops, then hands off
// to the reconnection loop unless the drop was a deliberate Disconnect.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, gen, err)
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("invalid JSON envelope from relay", "error", err)
			continue
		}

		switch env.Type {
		case protocol.TypePeers:
			peers := env.Peers
			if peers == nil {
				peers = []string{}
			}
			c.peers.Set(peers)
		case protocol.TypeMessage:
			c.mu.Lock()
			handler := c.onMessage
			c.mu.Unlock()
			if handler != nil {
				handler(env.From, env.Message)
			}
		default:
			c.logger.Debug("ignoring envelope", "type", env.Type)
		}
	}
}

// pingLoop pings the relay on an interval so the pong handler keeps
// extending the read deadline. It stops when its connection is no longer
// the active one or a write fails.
func (c *Client) pingLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		if c.gen != gen || c.conn != conn {
			c.mu.Unlock()
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Client) handleDrop(conn *websocket.Conn, gen int, cause error) {
	conn.Close()

	c.mu.Lock()
	if c.gen != gen || c.closed {
		// A newer connection took over, or Disconnect already ran.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.reconnectCancel = cancel
	c.mu.Unlock()

	c.status.Set(false)
	c.logger.Warn("relay connection dropped, reconnecting", "error", cause)

	go c.reconnectLoop(ctx)
}

// reconnectLoop retries connect semantics with exponential backoff until
// it succeeds or Disconnect cancels it. Failures are not surfaced to
// callers. The loop's context is released by establish when it adopts a
// connection, never by the loop itself.
func (c *Client) reconnectLoop(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	attempt := func() error {
		return c.establish(ctx)
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("reconnect attempt failed", "error", err, "next_in", next)
	}

	if err := backoff.RetryNotify(attempt, backoff.WithContext(policy, ctx), notify); err != nil {
		c.logger.Debug("reconnection cancelled", "error", err)
	}
}

// Disconnect closes the active connection if any, cancels any pending
// reconnection attempt, and resets connection status to disconnected and
// the peer list to empty. No further side effects occur after it returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.gen++ // invalidate the current read loop
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.status.Set(false)
	c.peers.Set([]string{})
}
