package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"peerlink/pkg/interfaces"
	"peerlink/pkg/types"
)

// Compile-time interface check.
var _ interfaces.SignalRelay = (*Relay)(nil)

// listLimitMax clamps how many records one poll may return.
const listLimitMax = 50

// Relay is the pull-based store-and-forward signal transport. Senders
// append to their own role partition; readers pull the opposite role's
// partition with an opaque cursor. Delivery is at-least-once: re-polling
// with the same cursor re-reads the same window, and consumers must
// tolerate the duplicates.
type Relay struct {
	sessions interfaces.SessionManager
	store    interfaces.Store
}

// NewRelay creates a relay over the given session manager and store.
func NewRelay(sessions interfaces.SessionManager, store interfaces.Store) *Relay {
	return &Relay{sessions: sessions, store: store}
}

// PostSignal authorizes the token, checks the session is live and not
// closed, and appends one record under the sender's own role partition.
// Each sender writes exactly once regardless of how many readers poll.
func (r *Relay) PostSignal(ctx context.Context, sessionID, token string, signalType types.SignalType, payload []byte) error {
	if err := types.ValidateSignal(signalType, payload); err != nil {
		return err
	}

	role, err := r.sessions.RequireRole(ctx, sessionID, token)
	if err != nil {
		return err
	}

	meta, _, err := r.store.GetSessionMeta(ctx, sessionID)
	if err != nil {
		return err
	}
	if meta.Status == types.StatusClosed {
		return types.ErrSessionClosed
	}

	now := time.Now()
	record := &types.SignalRecord{
		FromRole:         role,
		Type:             signalType,
		Payload:          json.RawMessage(payload),
		CreatedAtEpochMs: now.UnixMilli(),
	}

	remaining := time.Until(time.UnixMilli(meta.ExpiresAtEpochMs))
	if remaining < 0 {
		remaining = 0
	}

	if err := r.store.AppendSignal(ctx, sessionID, newSignalID(now), record, remaining); err != nil {
		return fmt.Errorf("appending signal: %w", err)
	}
	return nil
}

// newSignalID builds a lexicographically time-ordered record id. Ids
// must sort in creation order even within one millisecond, or a cursor
// positioned at one record could skip its same-millisecond successors.
func newSignalID(now time.Time) string {
	return fmt.Sprintf("%016x-%s", now.UnixNano(), uuid.New().String())
}

// ListSignalsFromPeer returns up to limit records written by the opposite
// role, starting after cursor ("" = beginning). The returned cursor is ""
// when the page was empty; otherwise it points past the last returned
// record. Limit is clamped to [1, 50].
func (r *Relay) ListSignalsFromPeer(ctx context.Context, sessionID, token, cursor string, limit int) ([]types.SignalRecord, string, error) {
	role, err := r.sessions.RequireRole(ctx, sessionID, token)
	if err != nil {
		return nil, "", err
	}

	if limit < 1 {
		limit = 1
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}

	afterCreatedAt, afterID, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", types.ErrValidation
	}

	stored, err := r.store.ListSignals(ctx, sessionID, role.Other(), afterCreatedAt, afterID, limit)
	if err != nil {
		return nil, "", fmt.Errorf("listing signals: %w", err)
	}

	records := make([]types.SignalRecord, 0, len(stored))
	for _, s := range stored {
		records = append(records, s.Record)
	}

	// An empty page yields an empty cursor: the caller keeps polling
	// from its previous position. Any non-empty page advances the cursor
	// past its last record.
	next := ""
	if len(stored) > 0 {
		last := stored[len(stored)-1]
		next = encodeCursor(last.Record.CreatedAtEpochMs, last.ID)
	}

	return records, next, nil
}
