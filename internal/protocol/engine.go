package protocol

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"peerlink/internal/game"
	"peerlink/pkg/types"
)

// SendFunc transmits one marshaled protocol frame over the direct channel.
type SendFunc func([]byte) error

// Engine drives one peer's side of the sync protocol. It owns the local
// game state; there is no authoritative copy anywhere else — convergence
// comes from both ends applying the same moves and comparing hashes.
//
// Known limitation, inherited from the protocol design: if both ends
// diverge and each rejects the other's StateSync, no automatic path
// reconciles them; a manual Reset is the remaining remedy.
type Engine struct {
	mu    sync.Mutex
	role  types.Role
	state game.State
	send  SendFunc
}

// NewEngine creates an engine for the given role starting from the
// initial game state.
func NewEngine(role types.Role, send SendFunc) *Engine {
	return &Engine{
		role:  role,
		state: game.NewState(),
		send:  send,
	}
}

// State returns a copy of the current local state.
func (e *Engine) State() game.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SendHello announces the local role to the peer.
func (e *Engine) SendHello() error {
	return e.sendMsg(HelloMsg{Type: MsgHello, Role: e.role})
}

// LocalMove validates and applies a move by the local player, then sends
// a Move message carrying the hash of the new state. A rejected move
// leaves state untouched and sends nothing.
func (e *Engine) LocalMove(moveIndex int) (Decision, error) {
	e.mu.Lock()
	decision := ApplyLocalMove(e.state, e.role, moveIndex)
	if decision.Applied {
		e.state = decision.Next
	}
	e.mu.Unlock()

	if !decision.Applied {
		return decision, nil
	}

	msg := MoveMsg{Type: MsgMove, MoveIndex: moveIndex, Hash: StateHash(decision.Next)}
	if err := e.sendMsg(msg); err != nil {
		return decision, fmt.Errorf("sending move: %w", err)
	}
	return decision, nil
}

// Reset returns the local state to the initial position and broadcasts
// Reset. Applied unconditionally on both ends, no negotiation.
func (e *Engine) Reset() error {
	e.mu.Lock()
	e.state = game.NewState()
	e.mu.Unlock()
	return e.sendMsg(ResetMsg{Type: MsgReset})
}

// Handle processes one inbound frame. Unknown or malformed frames return
// ErrMalformedMessage; protocol-level rejections (turn violations, hash
// mismatches) are handled internally and never fail the call.
func (e *Engine) Handle(raw []byte) error {
	msg, err := Parse(raw)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case HelloMsg:
		log.Printf("protocol: peer hello role=%s", m.Role)
	case MoveMsg:
		e.handleMove(m)
	case ResetMsg:
		e.mu.Lock()
		e.state = game.NewState()
		e.mu.Unlock()
	case StateSyncMsg:
		e.handleStateSync(m)
	case ResyncRequestMsg:
		e.handleResyncRequest()
	case ErrorMsg:
		log.Printf("protocol: peer error: %s", m.Message)
	}
	return nil
}

// handleMove applies a remote move and compares the resulting local hash
// with the sender's declared hash. On mismatch it requests a resync with
// its own hash — signaling disagreement without claiming to be right.
func (e *Engine) handleMove(msg MoveMsg) {
	e.mu.Lock()
	decision := ApplyRemoteMove(e.state, e.role, msg.MoveIndex)
	if decision.Applied {
		e.state = decision.Next
	}
	e.mu.Unlock()

	if !decision.Applied {
		log.Printf("protocol: remote move rejected: reason=%s index=%d", decision.Reason, msg.MoveIndex)
		return
	}

	localHash := StateHash(decision.Next)
	if msg.Hash != localHash {
		if err := e.sendMsg(ResyncRequestMsg{Type: MsgResyncRequest, WantHash: localHash}); err != nil {
			log.Printf("protocol: resync request send failed: %v", err)
		}
	}
}

// handleResyncRequest replies with a snapshot of this end's own state.
// No reasoning about which side is correct happens here.
func (e *Engine) handleResyncRequest() {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	msg := StateSyncMsg{Type: MsgStateSync, State: state, Hash: StateHash(state)}
	if err := e.sendMsg(msg); err != nil {
		log.Printf("protocol: state sync send failed: %v", err)
	}
}

// handleStateSync adopts the peer's snapshot only when it is internally
// consistent; a corrupted or mismatched snapshot is discarded and local
// state stays untouched.
func (e *Engine) handleStateSync(msg StateSyncMsg) {
	state, ok := ValidateStateSync(msg)
	if !ok {
		log.Printf("protocol: discarding state sync with mismatched hash")
		return
	}
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

func (e *Engine) sendMsg(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling protocol message: %w", err)
	}
	return e.send(data)
}
