package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"peerlink/pkg/types"
)

func newConnectedPair(t *testing.T) (server *Connection, client *gws.Conn) {
	t.Helper()

	connCh := make(chan *Connection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- NewConnection(socket)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-connCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server connection")
	}
	t.Cleanup(func() { _ = server.Close() })
	return server, client
}

func TestConnectionSendDeliversFrame(t *testing.T) {
	server, client := newConnectedPair(t)

	msg := types.ServerMessage{
		Channel:   types.ChannelP2PSignal,
		Type:      types.ServerMsgWelcome,
		SessionID: "s1",
		Role:      types.RoleInitiator,
	}
	if err := server.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got types.ServerMessage
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Type != types.ServerMsgWelcome || got.Role != types.RoleInitiator {
		t.Errorf("frame = %+v", got)
	}
}

func TestConnectionBindAndIdentity(t *testing.T) {
	server, _ := newConnectedPair(t)

	if _, _, ok := server.Identity(); ok {
		t.Error("identity must be unset before Bind")
	}

	server.Bind("s1", types.RoleResponder)
	sessionID, role, ok := server.Identity()
	if !ok || sessionID != "s1" || role != types.RoleResponder {
		t.Errorf("identity = (%s, %s, %v)", sessionID, role, ok)
	}
}

func TestConnectionCloseIdempotent(t *testing.T) {
	server, _ := newConnectedPair(t)

	if !server.Open() {
		t.Error("connection must be open before Close")
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if server.Open() {
		t.Error("connection must report closed after Close")
	}
	if err := server.Send(types.ServerMessage{}); err != ErrConnectionClosed {
		t.Errorf("Send after Close err = %v, want ErrConnectionClosed", err)
	}
}
