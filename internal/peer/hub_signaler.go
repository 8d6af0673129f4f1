package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peerlink/pkg/types"
)

const hubDialTimeout = 10 * time.Second

// HubSignaler moves signals through the push hub over a websocket. It
// sends Hello on connect, forwards Signal frames outbound, and delivers
// inbound Signal frames to the handler. Frames on other channels and
// unknown types are dropped.
type HubSignaler struct {
	wsURL     string
	sessionID string
	token     string

	mu   sync.Mutex // guards writes to conn
	conn *websocket.Conn

	stop     chan struct{}
	stopOnce sync.Once
}

func NewHubSignaler(wsURL, sessionID, token string) *HubSignaler {
	return &HubSignaler{
		wsURL:     wsURL,
		sessionID: sessionID,
		token:     token,
		stop:      make(chan struct{}),
	}
}

func (s *HubSignaler) Post(ctx context.Context, signalType types.SignalType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}
	return s.write(types.ClientMessage{
		Channel:    types.ChannelP2PSignal,
		Type:       types.ClientMsgSignal,
		SessionID:  s.sessionID,
		Token:      s.token,
		SignalType: signalType,
		Payload:    raw,
	})
}

// Start dials the hub, registers with Hello, and begins delivering
// inbound signals. The read loop runs until Stop or the context ends.
func (s *HubSignaler) Start(ctx context.Context, handle func(types.SignalRecord)) error {
	dialer := websocket.Dialer{HandshakeTimeout: hubDialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	hello := types.ClientMessage{
		Channel:   types.ChannelP2PSignal,
		Type:      types.ClientMsgHello,
		SessionID: s.sessionID,
		Token:     s.token,
	}
	if err := s.write(hello); err != nil {
		conn.Close()
		return fmt.Errorf("send hello: %w", err)
	}

	go func() {
		<-s.stop
		conn.Close()
	}()
	go s.readLoop(conn, handle)
	return nil
}

func (s *HubSignaler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *HubSignaler) write(msg types.ClientMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("hub signaler not started")
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *HubSignaler) readLoop(conn *websocket.Conn, handle func(types.SignalRecord)) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
			default:
				log.Printf("hub signaler: read failed: session=%s err=%v", s.sessionID, err)
			}
			return
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("hub signaler: malformed frame: session=%s err=%v", s.sessionID, err)
			continue
		}
		if msg.Channel != types.ChannelP2PSignal {
			continue
		}

		switch msg.Type {
		case types.ServerMsgWelcome:
			log.Printf("hub signaler: registered: session=%s role=%s", s.sessionID, msg.Role)
		case types.ServerMsgSignal:
			handle(types.SignalRecord{
				FromRole:         msg.FromRole,
				Type:             msg.SignalType,
				Payload:          msg.Payload,
				CreatedAtEpochMs: time.Now().UnixMilli(),
			})
		case types.ServerMsgError:
			log.Printf("hub signaler: server error: session=%s message=%q", s.sessionID, msg.Message)
		}
	}
}

var _ Signaler = (*HubSignaler)(nil)
