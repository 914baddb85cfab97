package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftbyte/driftbyte/pkg/protocol"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server relays signaling envelopes between connected peers. Each peer
// connection runs through three states: connecting (HTTP upgrade), open
// (registered in the hub), closed (deregistered, terminal).
type Server struct {
	hub    *Hub
	logger *slog.Logger
}

// NewServer creates a relay server over the given hub.
func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    hub,
		logger: logger,
	}
}

// Handler returns the HTTP handler exposing /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// handleWS owns one peer connection from upgrade to teardown.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// A peer may declare its identifier; otherwise the server assigns one.
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	var writeMu sync.Mutex
	sendFunc := func(env protocol.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(env)
	}

	// Keepalive: pings extend the read deadline through the pong handler,
	// so a peer that stops responding falls out of the read loop.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-pingDone:
				return
			}
		}
	}()

	// Open: register, then announce the new membership to everyone,
	// including the peer that just joined.
	removePeer := s.hub.Add(clientID, sendFunc)
	s.logger.Info("peer connected", "client_id", clientID)
	s.hub.Broadcast(protocol.NewPeersEnvelope(s.hub.List()))

	// Closed: deregister first so the broadcast list reflects the
	// departure, then announce it to the remaining peers.
	defer func() {
		removePeer()
		s.hub.Broadcast(protocol.NewPeersEnvelope(s.hub.List()))
		s.logger.Info("peer disconnected", "client_id", clientID)
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error("websocket read error", "client_id", clientID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warn("invalid JSON envelope", "client_id", clientID, "error", err)
			continue
		}
		if err := env.Validate(); err != nil {
			s.logger.Warn("invalid envelope", "client_id", clientID, "error", err)
			continue
		}
		if env.Type != protocol.TypeMessage || env.To == "" {
			continue
		}

		// Stamp the sender identity: peers cannot impersonate each other.
		env.From = clientID
		if !s.hub.SendTo(env.To, env) {
			// Unknown target: dropped without notifying the sender.
			s.logger.Warn("dropping message for unknown peer",
				"from", clientID, "to", env.To)
		}
	}
}
