package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"peerlink/internal/websocket"
	"peerlink/pkg/interfaces"
	"peerlink/pkg/types"
)

// Compile-time interface check.
var _ websocket.SignalHub = (*Hub)(nil)

// DefaultBufferTTL is how long an undeliverable push message survives.
// Shorter than the session TTL on purpose: the buffer only bridges brief
// disconnects, it is not a second relay.
const DefaultBufferTTL = 10 * time.Minute

// Hub is the live push-based signal transport. When both peers hold open
// sockets, signals flow directly; when the target role is disconnected,
// the envelope is parked in the store and drained, in creation order, the
// moment that role says Hello again.
type Hub struct {
	sessions  interfaces.SessionManager
	store     interfaces.Store
	registry  *registry
	bufferTTL time.Duration
}

// NewHub creates a hub. A non-positive bufferTTL falls back to
// DefaultBufferTTL.
func NewHub(sessions interfaces.SessionManager, store interfaces.Store, bufferTTL time.Duration) *Hub {
	if bufferTTL <= 0 {
		bufferTTL = DefaultBufferTTL
	}
	return &Hub{
		sessions:  sessions,
		store:     store,
		registry:  newRegistry(),
		bufferTTL: bufferTTL,
	}
}

// HandleHello authorizes the token, registers the socket under its role,
// replies Welcome, and drains any buffered messages addressed to that
// role, deleting each as it is sent.
func (h *Hub) HandleHello(ctx context.Context, conn *websocket.Connection, msg types.ClientMessage) {
	role, err := h.sessions.RequireRole(ctx, msg.SessionID, msg.Token)
	if err != nil {
		h.sendError(conn, msg.SessionID, err)
		return
	}

	conn.Bind(msg.SessionID, role)
	if prev := h.registry.register(msg.SessionID, role, conn); prev != nil {
		// A newer socket replaces the old one for this role.
		_ = prev.Close()
	}

	if err := conn.Send(types.ServerMessage{
		Channel:   types.ChannelP2PSignal,
		Type:      types.ServerMsgWelcome,
		SessionID: msg.SessionID,
		Role:      role,
	}); err != nil {
		log.Printf("hub welcome send failed: session=%s role=%s err=%v", msg.SessionID, role, err)
		return
	}

	h.drainBuffered(ctx, conn, msg.SessionID, role)
}

// HandleSignal authorizes the sender, validates the signal type, and
// delivers the envelope to the peer role's live socket — or buffers it
// with a short TTL when the peer is not connected.
func (h *Hub) HandleSignal(ctx context.Context, conn *websocket.Connection, msg types.ClientMessage) {
	role, err := h.sessions.RequireRole(ctx, msg.SessionID, msg.Token)
	if err != nil {
		h.sendError(conn, msg.SessionID, err)
		return
	}

	if err := types.ValidateSignal(msg.SignalType, msg.Payload); err != nil {
		h.sendError(conn, msg.SessionID, err)
		return
	}

	out := types.ServerMessage{
		Channel:    types.ChannelP2PSignal,
		Type:       types.ServerMsgSignal,
		SessionID:  msg.SessionID,
		FromRole:   role,
		SignalType: msg.SignalType,
		Payload:    msg.Payload,
	}

	peerRole := role.Other()
	if peer := h.registry.lookup(msg.SessionID, peerRole); peer != nil && peer.Open() {
		if err := peer.Send(out); err == nil {
			return
		}
		// Fall through to buffering: the peer socket is on its way down.
	}

	envelope, err := json.Marshal(out)
	if err != nil {
		log.Printf("hub envelope marshal failed: session=%s err=%v", msg.SessionID, err)
		return
	}
	if err := h.store.BufferMessage(ctx, msg.SessionID, peerRole, envelope, h.bufferTTL); err != nil {
		log.Printf("hub buffer write failed: session=%s toRole=%s err=%v", msg.SessionID, peerRole, err)
	}
}

// Disconnect removes the socket from its slot. Safe for sockets that
// never completed a Hello and for stale close events racing a newer
// registration.
func (h *Hub) Disconnect(conn *websocket.Connection) {
	sessionID, role, ok := conn.Identity()
	if !ok {
		return
	}
	h.registry.deregister(sessionID, role, conn)
}

// SessionCount reports how many sessions currently have a live socket.
func (h *Hub) SessionCount() int {
	return h.registry.sessionCount()
}

func (h *Hub) drainBuffered(ctx context.Context, conn *websocket.Connection, sessionID string, role types.Role) {
	buffered, err := h.store.ListBuffered(ctx, sessionID, role)
	if err != nil {
		log.Printf("hub buffer drain failed: session=%s role=%s err=%v", sessionID, role, err)
		return
	}

	for _, msg := range buffered {
		if err := conn.SendRaw(msg.Message); err != nil {
			// Undelivered messages stay buffered for the next Hello.
			return
		}
		if err := h.store.DeleteBuffered(ctx, sessionID, role, msg.ID); err != nil {
			log.Printf("hub buffer delete failed: session=%s role=%s id=%s err=%v", sessionID, role, msg.ID, err)
		}
	}
}

// sendError reports a failure to the offending socket only; errors are
// never broadcast to the peer.
func (h *Hub) sendError(conn *websocket.Connection, sessionID string, cause error) {
	_ = conn.Send(types.ServerMessage{
		Channel:   types.ChannelP2PSignal,
		Type:      types.ServerMsgError,
		SessionID: sessionID,
		Message:   cause.Error(),
	})
}
