package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peerlink/pkg/types"
)

// writeWait bounds a single websocket write.
const writeWait = 5 * time.Second

// Connection wraps a websocket connection with a single-writer goroutine
// so concurrent senders never race on the underlying socket. Identity
// (session and role) is unset until a Hello frame authenticates the peer.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.RWMutex
	sessionID string
	role      types.Role
	bound     bool
}

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send marshals a server frame and queues it for the writer goroutine.
func (c *Connection) Send(msg types.ServerMessage) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.SendRaw(data)
}

// SendRaw queues pre-marshaled bytes. Used when draining buffered
// envelopes that are already stored as wire JSON.
func (c *Connection) SendRaw(data []byte) error {
	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeWait):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Bind records the session and role resolved from a Hello frame.
func (c *Connection) Bind(sessionID string, role types.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.role = role
	c.bound = true
}

// Identity returns the bound session and role; ok is false before a
// successful Hello.
func (c *Connection) Identity() (sessionID string, role types.Role, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID, c.role, c.bound
}

// Open reports whether the connection has not been closed.
func (c *Connection) Open() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// Close tears the connection down. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
