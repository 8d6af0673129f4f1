package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"peerlink/pkg/types"
)

// SignalHub consumes authenticated push-channel frames. Implemented by
// the hub package; kept as an interface here so the transport layer stays
// free of routing logic.
type SignalHub interface {
	HandleHello(ctx context.Context, conn *Connection, msg types.ClientMessage)
	HandleSignal(ctx context.Context, conn *Connection, msg types.ClientMessage)
	Disconnect(conn *Connection)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the deployment in front of this
		// service.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests to push-channel websockets and runs the
// per-connection read loop. Authentication happens per frame via the hub
// (a Hello must carry a valid token), not at upgrade time.
type Handler struct {
	hub          SignalHub
	readTimeout  time.Duration
	pingInterval time.Duration
}

// NewHandler creates a websocket handler delivering frames to hub.
func NewHandler(hub SignalHub, readTimeout, pingInterval time.Duration) *Handler {
	return &Handler{hub: hub, readTimeout: readTimeout, pingInterval: pingInterval}
}

// HandleWebSocket upgrades the request and services frames until the
// socket closes or errors, then deregisters the connection.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(socket)
	go h.pingLoop(conn)
	h.readLoop(r.Context(), conn)
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *Connection) {
	defer func() {
		h.hub.Disconnect(conn)
		_ = conn.Close()
	}()

	_ = conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		var msg types.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frames are dropped silently.
			continue
		}
		if msg.Channel != types.ChannelP2PSignal {
			continue
		}

		switch msg.Type {
		case types.ClientMsgHello:
			h.hub.HandleHello(ctx, conn, msg)
		case types.ClientMsgSignal:
			h.hub.HandleSignal(ctx, conn, msg)
		default:
			// Unknown frame types are dropped like malformed ones.
		}
	}
}
