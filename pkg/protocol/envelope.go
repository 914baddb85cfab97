// Package protocol defines the JSON envelopes exchanged between peers and
// the relay. Field names are part of the wire contract.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope type constants.
const (
	// TypePeers carries a full replacement of the recipient's peer list.
	TypePeers = "peers"
	// TypeMessage carries an opaque payload relayed to a single peer.
	TypeMessage = "message"
)

// Envelope is the unit of exchange on a relay connection. Exactly one of
// the type-specific fields is populated depending on Type: Peers for
// "peers" envelopes, To/From/Message for "message" envelopes.
type Envelope struct {
	Type    string          `json:"type"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Peers   []string        `json:"peers,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// NewPeersEnvelope builds a peer-list replacement envelope.
func NewPeersEnvelope(peers []string) Envelope {
	if peers == nil {
		peers = []string{}
	}
	return Envelope{
		Type:  TypePeers,
		Peers: peers,
	}
}

// NewMessageEnvelope builds a directed relay envelope. The payload is
// marshaled to JSON and carried opaquely.
func NewMessageEnvelope(to string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal message payload: %w", err)
	}
	return Envelope{
		Type:    TypeMessage,
		To:      to,
		Message: raw,
	}, nil
}

// Validate checks the envelope for structural problems before routing.
func (e Envelope) Validate() error {
	switch e.Type {
	case "":
		return errors.New("type is required")
	case TypePeers, TypeMessage:
		return nil
	default:
		return fmt.Errorf("unknown envelope type %q", e.Type)
	}
}

// DecodeMessage unmarshals the opaque message payload into out.
func (e Envelope) DecodeMessage(out any) error {
	if len(e.Message) == 0 {
		return errors.New("message payload is empty")
	}
	if err := json.Unmarshal(e.Message, out); err != nil {
		return fmt.Errorf("unmarshal message payload: %w", err)
	}
	return nil
}
