package types

import "encoding/json"

// Push-channel wire contracts. Every frame carries a channel discriminator
// so unrelated websocket traffic sharing the endpoint can be ignored.

// ChannelP2PSignal tags frames belonging to the signaling push channel.
const ChannelP2PSignal = "P2pSignal"

// Client -> server message types.
const (
	ClientMsgHello  = "Hello"
	ClientMsgSignal = "Signal"
)

// Server -> client message types.
const (
	ServerMsgWelcome = "Welcome"
	ServerMsgSignal  = "Signal"
	ServerMsgError   = "Error"
)

// ClientMessage is a frame sent by a peer to the hub. Hello registers the
// socket under the token's role; Signal forwards one signaling payload to
// the opposite role.
type ClientMessage struct {
	Channel    string          `json:"channel"`
	Type       string          `json:"type"`
	SessionID  string          `json:"sessionId"`
	Token      string          `json:"token"`
	SignalType SignalType      `json:"signalType,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is a frame sent by the hub to a peer. Welcome acknowledges
// a Hello with the resolved role; Signal delivers a peer's signaling
// payload; Error reports an authorization or validation failure to the
// offending socket only.
type ServerMessage struct {
	Channel    string          `json:"channel"`
	Type       string          `json:"type"`
	SessionID  string          `json:"sessionId"`
	Role       Role            `json:"role,omitempty"`
	FromRole   Role            `json:"fromRole,omitempty"`
	SignalType SignalType      `json:"signalType,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Message    string          `json:"message,omitempty"`
}
