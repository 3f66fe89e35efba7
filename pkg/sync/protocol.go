// Package sync implements the peer-to-peer exchange core: handshake,
// entry exchange with validation, automatic peer/tree tracking, and a
// background flush queue. Two independent peers exchange these
// messages symmetrically; there is no leader.
package sync

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/warren-ledger/pkg/entry"
)

// ProtocolVersion is the only sync protocol version this package
// speaks. A peer advertising a different version is refused at
// handshake time rather than guessed at.
const ProtocolVersion = 1

// MessageType tags which protocol variant an Envelope carries.
type MessageType string

const (
	TypeHello            MessageType = "hello"
	TypeStatus           MessageType = "status"
	TypeSendEntries      MessageType = "send_entries"
	TypeAck              MessageType = "ack"
	TypeCount            MessageType = "count"
	TypeError            MessageType = "error"
	TypeSyncTreeRequest  MessageType = "sync_tree_request"
	TypeSyncTreeResponse MessageType = "sync_tree_response"
	TypeHandshake        MessageType = "handshake"
	TypeHandshakeAck     MessageType = "handshake_ack"
)

// Envelope is the wire shape every sync message travels in: a type tag
// plus its JSON-encoded payload.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a typed payload into an Envelope.
func Encode(t MessageType, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("sync: encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// Decode unmarshals e's payload into out, which must be a pointer to
// the type matching e.Type.
func (e Envelope) Decode(out interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("sync: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Hello is a bare liveness probe.
type Hello struct {
	Message string `json:"message,omitempty"`
}

// Status reports server state in response to Hello.
type Status struct {
	Message string `json:"message"`
}

// SendEntries carries a batch of entries to persist at the receiver.
type SendEntries struct {
	Entries []*entry.Entry `json:"entries"`
}

// Ack acknowledges a SendEntries batch was fully applied (including the
// idempotent case where every entry was already present).
type Ack struct{}

// Count reports how many entries a request affected, used by transports
// that want visibility into partial-batch bookkeeping without a full
// Ack/Error split.
type Count struct {
	N int `json:"n"`
}

// Error reports a handled failure. Sync handlers never panic; every
// failure path converts to this before crossing the transport boundary.
type Error struct {
	Message string `json:"message"`
}

func (e Error) Error() string { return e.Message }

// SyncTreeRequest asks the peer for every entry in tree TreeRoot the
// requester doesn't already have, given the tips it already knows
// about. RequesterPubKey self-identifies the caller: the Transport
// abstraction is request/response with no standing connection
// identity, so the requester names itself in the payload rather than
// the server inferring it from a session, letting the server satisfy
// the automatic peer-tracking contract on receipt.
type SyncTreeRequest struct {
	TreeRoot        entry.ID   `json:"tree_root"`
	KnownTips       []entry.ID `json:"known_tips"`
	RequesterPubKey string     `json:"requester_pubkey,omitempty"`
}

// SyncTreeResponse answers a SyncTreeRequest with the entries the
// requester is missing.
type SyncTreeResponse struct {
	Entries []*entry.Entry `json:"entries"`
}

// Handshake opens a connection: protocol version plus the dialing
// peer's device public key (base64 ed25519, entry.EncodePublicKey
// format).
type Handshake struct {
	ProtocolVersion int    `json:"protocol_version"`
	DevicePubKey    string `json:"device_pubkey"`
}

// HandshakeAck confirms a Handshake, echoing the acking peer's own
// device public key so both sides learn each other's identity in one
// round trip.
type HandshakeAck struct {
	DevicePubKey string `json:"device_pubkey"`
}

// ProtocolMismatch describes a peer advertising a different protocol
// version than expected. The handshake handler answers with an Error
// envelope whose Message is this error's text.
type ProtocolMismatch struct {
	Expected int `json:"expected"`
	Received int `json:"received"`
}

func (m ProtocolMismatch) Error() string {
	return fmt.Sprintf("sync: protocol mismatch: expected version %d, peer sent %d", m.Expected, m.Received)
}
