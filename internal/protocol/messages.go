// Package protocol implements the application-level message protocol that
// keeps two independently-computed game states convergent over a direct
// peer channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"peerlink/internal/game"
	"peerlink/pkg/types"
)

// MsgType discriminates protocol messages on the wire.
type MsgType string

const (
	MsgHello         MsgType = "Hello"
	MsgMove          MsgType = "Move"
	MsgReset         MsgType = "Reset"
	MsgStateSync     MsgType = "StateSync"
	MsgResyncRequest MsgType = "ResyncRequest"
	MsgError         MsgType = "Error"
)

// ErrMalformedMessage reports a frame that could not be decoded.
var ErrMalformedMessage = errors.New("malformed protocol message")

// HelloMsg announces a peer's role after the channel opens.
type HelloMsg struct {
	Type MsgType    `json:"type"`
	Role types.Role `json:"role"`
}

// MoveMsg carries one move plus the sender's hash of the state *after*
// the move, so the receiver can detect divergence immediately.
type MoveMsg struct {
	Type      MsgType `json:"type"`
	MoveIndex int     `json:"moveIndex"`
	Hash      string  `json:"hash"`
}

// ResetMsg unconditionally returns both ends to the initial state.
type ResetMsg struct {
	Type MsgType `json:"type"`
}

// StateSyncMsg is a full snapshot with its own hash. The receiver accepts
// it only if the hash matches the state it carries.
type StateSyncMsg struct {
	Type  MsgType    `json:"type"`
	State game.State `json:"state"`
	Hash  string     `json:"hash"`
}

// ResyncRequestMsg signals "our states disagree" without claiming which
// side is correct. WantHash is the sender's own current hash.
type ResyncRequestMsg struct {
	Type     MsgType `json:"type"`
	WantHash string  `json:"wantHash"`
}

// ErrorMsg carries a free-form protocol error.
type ErrorMsg struct {
	Type    MsgType `json:"type"`
	Message string  `json:"message"`
}

// Parse decodes a raw frame into its concrete message type.
func Parse(raw []byte) (any, error) {
	var envelope struct {
		Type MsgType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ErrMalformedMessage
	}

	switch envelope.Type {
	case MsgHello:
		var msg HelloMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedMessage
		}
		return msg, nil
	case MsgMove:
		var msg MoveMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedMessage
		}
		return msg, nil
	case MsgReset:
		return ResetMsg{Type: MsgReset}, nil
	case MsgStateSync:
		var msg StateSyncMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedMessage
		}
		return msg, nil
	case MsgResyncRequest:
		var msg ResyncRequestMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedMessage
		}
		return msg, nil
	case MsgError:
		var msg ErrorMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedMessage
		}
		return msg, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, envelope.Type)
}

// StateHash computes the divergence-detection digest of a state: the
// board cells joined with "|", then the current player and result. Cheap
// and deterministic; not cryptographic, and must not be — both ends
// recompute it on every applied move.
func StateHash(state game.State) string {
	var b strings.Builder
	for i, cell := range state.Board {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(string(cell))
	}
	b.WriteString("::")
	b.WriteString(string(state.CurrentPlayer))
	b.WriteString("::")
	b.WriteString(string(state.Result))
	return b.String()
}

// ValidateStateSync checks a snapshot's self-consistency: the carried
// hash must match the carried state. Inconsistent snapshots are discarded
// by the caller, leaving local state untouched.
func ValidateStateSync(msg StateSyncMsg) (game.State, bool) {
	if StateHash(msg.State) != msg.Hash {
		return game.State{}, false
	}
	return msg.State, true
}
