package relay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"peerlink/internal/session"
	"peerlink/internal/store"
	"peerlink/pkg/types"
)

type fixture struct {
	relay          *Relay
	sessionID      string
	initiatorToken string
	responderToken string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "relay.db"), 4)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	sessions := session.NewManager(s, time.Hour)
	ctx := context.Background()

	created, err := sessions.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	joined, err := sessions.Join(ctx, created.SessionID, "bob")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	return &fixture{
		relay:          NewRelay(sessions, s),
		sessionID:      created.SessionID,
		initiatorToken: created.Initiator.Token,
		responderToken: joined.Responder.Token,
	}
}

func TestPostSignalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.relay.PostSignal(ctx, f.sessionID, f.initiatorToken, "Teleport", []byte(`{}`))
	if !errors.Is(err, types.ErrInvalidSignalType) {
		t.Errorf("bad type err = %v, want ErrInvalidSignalType", err)
	}

	err = f.relay.PostSignal(ctx, f.sessionID, "forged", types.SignalOffer, []byte(`{"sdp":"x"}`))
	if !errors.Is(err, types.ErrUnauthorized) {
		t.Errorf("forged token err = %v, want ErrUnauthorized", err)
	}
}

func TestListSeesOnlyPeerSignals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.relay.PostSignal(ctx, f.sessionID, f.initiatorToken, types.SignalOffer, []byte(`{"type":"offer"}`)); err != nil {
		t.Fatalf("PostSignal: %v", err)
	}

	// The initiator polling sees nothing: its own signals are excluded.
	records, next, err := f.relay.ListSignalsFromPeer(ctx, f.sessionID, f.initiatorToken, "", 10)
	if err != nil {
		t.Fatalf("initiator list: %v", err)
	}
	if len(records) != 0 || next != "" {
		t.Errorf("initiator sees own signals: records=%d next=%q", len(records), next)
	}

	// The responder sees the offer, attributed to the initiator.
	records, next, err = f.relay.ListSignalsFromPeer(ctx, f.sessionID, f.responderToken, "", 10)
	if err != nil {
		t.Fatalf("responder list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("responder records = %d, want 1", len(records))
	}
	if records[0].FromRole != types.RoleInitiator || records[0].Type != types.SignalOffer {
		t.Errorf("record = %+v", records[0])
	}
	if next == "" {
		t.Error("non-empty page must return a cursor")
	}
}

// TestCursorWalk follows the poll pattern a client uses: consume a page,
// poll again with the returned cursor, and see each record exactly once
// while the empty page leaves the cursor unchanged.
func TestCursorWalk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := func(payload string) {
		t.Helper()
		if err := f.relay.PostSignal(ctx, f.sessionID, f.initiatorToken, types.SignalIceCandidate, []byte(payload)); err != nil {
			t.Fatalf("PostSignal: %v", err)
		}
	}

	post(`{"seq":0}`)

	records, cursor, err := f.relay.ListSignalsFromPeer(ctx, f.sessionID, f.responderToken, "", 10)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if len(records) != 1 || cursor == "" {
		t.Fatalf("first poll: records=%d cursor=%q", len(records), cursor)
	}

	// Nothing new: empty page, empty cursor, client keeps polling from
	// the same position.
	records, next, err := f.relay.ListSignalsFromPeer(ctx, f.sessionID, f.responderToken, cursor, 10)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(records) != 0 || next != "" {
		t.Fatalf("second poll: records=%d next=%q", len(records), next)
	}

	post(`{"seq":1}`)
	post(`{"seq":2}`)

	records, next, err = f.relay.ListSignalsFromPeer(ctx, f.sessionID, f.responderToken, cursor, 10)
	if err != nil {
		t.Fatalf("third poll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("third poll records = %d, want 2", len(records))
	}
	if string(records[0].Payload) != `{"seq":1}` || string(records[1].Payload) != `{"seq":2}` {
		t.Errorf("third poll out of order: %s, %s", records[0].Payload, records[1].Payload)
	}
	if next == "" || next == cursor {
		t.Errorf("cursor must advance past the new records, got %q", next)
	}
}

func TestListLimitClamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.relay.PostSignal(ctx, f.sessionID, f.initiatorToken, types.SignalIceCandidate, []byte(`{}`)); err != nil {
			t.Fatalf("PostSignal: %v", err)
		}
	}

	// A non-positive limit is clamped up to 1, not treated as "all".
	records, _, err := f.relay.ListSignalsFromPeer(ctx, f.sessionID, f.responderToken, "", 0)
	if err != nil {
		t.Fatalf("list limit 0: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("limit 0 records = %d, want 1", len(records))
	}

	// An oversized limit is clamped down and still works.
	records, _, err = f.relay.ListSignalsFromPeer(ctx, f.sessionID, f.responderToken, "", 10000)
	if err != nil {
		t.Fatalf("list limit 10000: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("limit 10000 records = %d, want 3", len(records))
	}
}

func TestListRejectsGarbageCursor(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.relay.ListSignalsFromPeer(context.Background(), f.sessionID, f.responderToken, "!!not base64!!", 10)
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("garbage cursor err = %v, want ErrValidation", err)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := encodeCursor(1234567890, "rec-1")
	createdAt, id, err := decodeCursor(cursor)
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if createdAt != 1234567890 || id != "rec-1" {
		t.Errorf("decoded (%d, %s)", createdAt, id)
	}

	createdAt, id, err = decodeCursor("")
	if err != nil || createdAt != 0 || id != "" {
		t.Errorf("empty cursor = (%d, %q, %v)", createdAt, id, err)
	}
}
