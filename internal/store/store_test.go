package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"peerlink/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMeta(sessionID string) *types.SessionMeta {
	now := time.Now().UnixMilli()
	return &types.SessionMeta{
		SessionID:        sessionID,
		Status:           types.StatusWaitingForPeer,
		CreatedAtEpochMs: now,
		ExpiresAtEpochMs: now + time.Hour.Milliseconds(),
		Initiator:        types.PeerInfo{ClientID: "alice", Token: "token-a-" + sessionID},
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := testMeta("s1")
	if err := s.CreateSession(ctx, meta, time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, version, err := s.GetSessionMeta(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionMeta: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if got.SessionID != "s1" || got.Initiator.ClientID != "alice" {
		t.Errorf("meta = %+v", got)
	}

	if _, _, err := s.GetSessionMeta(ctx, "missing"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("missing session err = %v, want ErrSessionNotFound", err)
	}
}

func TestExpiredSessionInvisible(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := testMeta("s1")
	if err := s.CreateSession(ctx, meta, -time.Second); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, _, err := s.GetSessionMeta(ctx, "s1"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expired session err = %v, want ErrSessionNotFound", err)
	}
	if _, err := s.TokenRole(ctx, "s1", meta.Initiator.Token); !errors.Is(err, types.ErrUnauthorized) {
		t.Errorf("expired token err = %v, want ErrUnauthorized", err)
	}
}

func TestCommitJoin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := testMeta("s1")
	if err := s.CreateSession(ctx, meta, time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	joined := *meta
	joined.Status = types.StatusActive
	joined.Responder = types.PeerInfo{ClientID: "bob", Token: "token-b"}

	if err := s.CommitJoin(ctx, &joined, 1, time.Hour); err != nil {
		t.Fatalf("CommitJoin: %v", err)
	}

	got, version, err := s.GetSessionMeta(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionMeta: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if got.Status != types.StatusActive || got.Responder.ClientID != "bob" {
		t.Errorf("meta = %+v", got)
	}

	role, err := s.TokenRole(ctx, "s1", "token-b")
	if err != nil {
		t.Fatalf("TokenRole: %v", err)
	}
	if role != types.RoleResponder {
		t.Errorf("role = %s, want Responder", role)
	}
}

func TestCommitJoinStaleVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := testMeta("s1")
	if err := s.CreateSession(ctx, meta, time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first := *meta
	first.Status = types.StatusActive
	first.Responder = types.PeerInfo{ClientID: "bob", Token: "token-b"}
	if err := s.CommitJoin(ctx, &first, 1, time.Hour); err != nil {
		t.Fatalf("first CommitJoin: %v", err)
	}

	second := *meta
	second.Status = types.StatusActive
	second.Responder = types.PeerInfo{ClientID: "carol", Token: "token-c"}
	if err := s.CommitJoin(ctx, &second, 1, time.Hour); !errors.Is(err, types.ErrJoinRace) {
		t.Fatalf("stale CommitJoin err = %v, want ErrJoinRace", err)
	}

	// The loser must not have written anything.
	got, _, err := s.GetSessionMeta(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionMeta: %v", err)
	}
	if got.Responder.ClientID != "bob" {
		t.Errorf("responder = %s, want bob", got.Responder.ClientID)
	}
	if _, err := s.TokenRole(ctx, "s1", "token-c"); !errors.Is(err, types.ErrUnauthorized) {
		t.Errorf("loser token err = %v, want ErrUnauthorized", err)
	}
}

func TestCommitJoinMissingSession(t *testing.T) {
	s := openTestStore(t)

	meta := testMeta("ghost")
	meta.Responder = types.PeerInfo{ClientID: "bob", Token: "token-b"}
	err := s.CommitJoin(context.Background(), meta, 1, time.Hour)
	if !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestTokenRole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	meta := testMeta("s1")
	if err := s.CreateSession(ctx, meta, time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	role, err := s.TokenRole(ctx, "s1", meta.Initiator.Token)
	if err != nil {
		t.Fatalf("TokenRole: %v", err)
	}
	if role != types.RoleInitiator {
		t.Errorf("role = %s, want Initiator", role)
	}

	if _, err := s.TokenRole(ctx, "s1", "forged"); !errors.Is(err, types.ErrUnauthorized) {
		t.Errorf("forged token err = %v, want ErrUnauthorized", err)
	}
	if _, err := s.TokenRole(ctx, "other", meta.Initiator.Token); !errors.Is(err, types.ErrUnauthorized) {
		t.Errorf("cross-session token err = %v, want ErrUnauthorized", err)
	}
}

func TestListSignalsOrderingAndPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		rec := &types.SignalRecord{
			FromRole:         types.RoleInitiator,
			Type:             types.SignalIceCandidate,
			Payload:          json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
			CreatedAtEpochMs: base + int64(i),
		}
		if err := s.AppendSignal(ctx, "s1", fmt.Sprintf("id-%d", i), rec, time.Hour); err != nil {
			t.Fatalf("AppendSignal %d: %v", i, err)
		}
	}

	page, err := s.ListSignals(ctx, "s1", types.RoleInitiator, 0, "", 3)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("page length = %d, want 3", len(page))
	}
	for i, stored := range page {
		if want := fmt.Sprintf("id-%d", i); stored.ID != want {
			t.Errorf("page[%d].ID = %s, want %s", i, stored.ID, want)
		}
	}

	last := page[len(page)-1]
	rest, err := s.ListSignals(ctx, "s1", types.RoleInitiator, last.Record.CreatedAtEpochMs, last.ID, 10)
	if err != nil {
		t.Fatalf("ListSignals page 2: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("second page length = %d, want 2", len(rest))
	}
	if rest[0].ID != "id-3" || rest[1].ID != "id-4" {
		t.Errorf("second page = %s, %s", rest[0].ID, rest[1].ID)
	}

	// The other role's partition stays empty.
	other, err := s.ListSignals(ctx, "s1", types.RoleResponder, 0, "", 10)
	if err != nil {
		t.Fatalf("ListSignals responder: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("responder partition length = %d, want 0", len(other))
	}
}

func TestListSignalsSameMillisecondTieBreak(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	for _, id := range []string{"a", "b", "c"} {
		rec := &types.SignalRecord{
			FromRole:         types.RoleResponder,
			Type:             types.SignalIceCandidate,
			Payload:          json.RawMessage(`{}`),
			CreatedAtEpochMs: now,
		}
		if err := s.AppendSignal(ctx, "s1", id, rec, time.Hour); err != nil {
			t.Fatalf("AppendSignal %s: %v", id, err)
		}
	}

	page, err := s.ListSignals(ctx, "s1", types.RoleResponder, now, "a", 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(page) != 2 || page[0].ID != "b" || page[1].ID != "c" {
		t.Errorf("page after (now, a) = %+v", page)
	}
}

func TestBufferedMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		if err := s.BufferMessage(ctx, "s1", types.RoleResponder, msg, time.Hour); err != nil {
			t.Fatalf("BufferMessage %d: %v", i, err)
		}
	}

	buffered, err := s.ListBuffered(ctx, "s1", types.RoleResponder)
	if err != nil {
		t.Fatalf("ListBuffered: %v", err)
	}
	if len(buffered) != 3 {
		t.Fatalf("buffered length = %d, want 3", len(buffered))
	}

	if err := s.DeleteBuffered(ctx, "s1", types.RoleResponder, buffered[0].ID); err != nil {
		t.Fatalf("DeleteBuffered: %v", err)
	}
	remaining, err := s.ListBuffered(ctx, "s1", types.RoleResponder)
	if err != nil {
		t.Fatalf("ListBuffered after delete: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("remaining length = %d, want 2", len(remaining))
	}

	// The other role sees nothing.
	other, err := s.ListBuffered(ctx, "s1", types.RoleInitiator)
	if err != nil {
		t.Fatalf("ListBuffered initiator: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("initiator buffer length = %d, want 0", len(other))
	}
}

func TestExpiredBufferedMessagesInvisible(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.BufferMessage(ctx, "s1", types.RoleResponder, json.RawMessage(`{}`), -time.Second); err != nil {
		t.Fatalf("BufferMessage: %v", err)
	}

	buffered, err := s.ListBuffered(ctx, "s1", types.RoleResponder)
	if err != nil {
		t.Fatalf("ListBuffered: %v", err)
	}
	if len(buffered) != 0 {
		t.Errorf("expired buffered length = %d, want 0", len(buffered))
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	s := openTestStore(t)

	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
