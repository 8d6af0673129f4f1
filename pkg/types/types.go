package types

import (
	"encoding/json"
)

// Role identifies which side of a session a peer occupies. The initiator
// created the session and plays X; the responder joined it and plays O.
// Fixed at session creation, immutable for the session's lifetime.
type Role string

const (
	RoleInitiator Role = "Initiator"
	RoleResponder Role = "Responder"
)

// Other returns the opposite role. Signal records are stored under the
// sender's role partition and read by the opposite role.
func (r Role) Other() Role {
	if r == RoleInitiator {
		return RoleResponder
	}
	return RoleInitiator
}

// Valid reports whether r is one of the two defined roles.
func (r Role) Valid() bool {
	return r == RoleInitiator || r == RoleResponder
}

// SessionStatus tracks a session's lifecycle. WaitingForPeer -> Active
// happens exactly once, atomically with responder assignment.
type SessionStatus string

const (
	StatusWaitingForPeer SessionStatus = "WaitingForPeer"
	StatusActive         SessionStatus = "Active"
	StatusClosed         SessionStatus = "Closed"
)

// SignalType classifies connection-establishment messages exchanged
// before a direct channel exists.
type SignalType string

const (
	SignalOffer        SignalType = "Offer"
	SignalAnswer       SignalType = "Answer"
	SignalIceCandidate SignalType = "IceCandidate"
)

// Valid reports whether t is a defined signal type.
func (t SignalType) Valid() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalIceCandidate:
		return true
	}
	return false
}

// PeerInfo binds a client identity to the bearer token issued for its role.
// Tokens are opaque credentials; do not log them.
type PeerInfo struct {
	ClientID string `json:"clientId"`
	Token    string `json:"token"`
}

// SessionMeta is the durable session record. Responder is the zero value
// until exactly one successful join populates it.
type SessionMeta struct {
	SessionID        string        `json:"sessionId"`
	Status           SessionStatus `json:"status"`
	CreatedAtEpochMs int64         `json:"createdAtEpochMs"`
	ExpiresAtEpochMs int64         `json:"expiresAtEpochMs"`
	Initiator        PeerInfo      `json:"initiator"`
	Responder        PeerInfo      `json:"responder"`
}

// HasResponder reports whether a join has already populated the responder
// slot. An empty client ID marks the slot as absent.
func (m *SessionMeta) HasResponder() bool {
	return m.Responder.ClientID != ""
}

// SignalRecord is one store-and-forward signaling message. Append-only,
// read by the opposite role, never mutated, expires with the session.
type SignalRecord struct {
	FromRole         Role            `json:"fromRole"`
	Type             SignalType      `json:"type"`
	Payload          json.RawMessage `json:"payload"`
	CreatedAtEpochMs int64           `json:"createdAtEpochMs"`
}

// BufferedMessage is a push-channel envelope parked for a role whose
// socket was not connected at send time. Deleted as soon as it is drained
// to a newly registered socket.
type BufferedMessage struct {
	ID      string
	Message json.RawMessage
}
