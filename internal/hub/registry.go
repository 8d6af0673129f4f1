package hub

import (
	"sync"

	"peerlink/internal/websocket"
	"peerlink/pkg/types"
)

// roleSlots holds at most one live socket per role for a session.
type roleSlots struct {
	initiator *websocket.Connection
	responder *websocket.Connection
}

// registry maps sessionID to its role slots. A single mutex serializes
// register, deregister and lookup so the "one live socket per role"
// invariant holds under concurrent connection churn.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*roleSlots
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*roleSlots)}
}

// register installs conn as the live socket for its role, returning any
// previous socket so the caller can close it outside the lock.
func (r *registry) register(sessionID string, role types.Role, conn *websocket.Connection) *websocket.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := r.sessions[sessionID]
	if slots == nil {
		slots = &roleSlots{}
		r.sessions[sessionID] = slots
	}

	var prev *websocket.Connection
	switch role {
	case types.RoleInitiator:
		prev = slots.initiator
		slots.initiator = conn
	case types.RoleResponder:
		prev = slots.responder
		slots.responder = conn
	}
	if prev == conn {
		prev = nil
	}
	return prev
}

// deregister clears conn's slot only if conn is still the registered
// socket for that role; a close event from a replaced socket must not
// evict its replacement. The session entry is dropped once both slots
// are empty.
func (r *registry) deregister(sessionID string, role types.Role, conn *websocket.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := r.sessions[sessionID]
	if slots == nil {
		return
	}

	switch role {
	case types.RoleInitiator:
		if slots.initiator == conn {
			slots.initiator = nil
		}
	case types.RoleResponder:
		if slots.responder == conn {
			slots.responder = nil
		}
	}

	if slots.initiator == nil && slots.responder == nil {
		delete(r.sessions, sessionID)
	}
}

// lookup returns the live socket for a role, if any.
func (r *registry) lookup(sessionID string, role types.Role) *websocket.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := r.sessions[sessionID]
	if slots == nil {
		return nil
	}
	if role == types.RoleInitiator {
		return slots.initiator
	}
	return slots.responder
}

// sessionCount reports how many sessions have at least one live socket.
func (r *registry) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
