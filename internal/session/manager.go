package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"peerlink/pkg/interfaces"
	"peerlink/pkg/types"
)

// Compile-time interface check.
var _ interfaces.SessionManager = (*Manager)(nil)

// DefaultTTL is how long a session and everything scoped to it lives.
const DefaultTTL = 30 * time.Minute

// Manager implements the session lifecycle over a Store. It owns every
// mutation of session records; nothing else writes them.
type Manager struct {
	store interfaces.Store
	ttl   time.Duration
}

// NewManager creates a session manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(store interfaces.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// Create allocates a fresh session with clientID as initiator, status
// WaitingForPeer, and mints the initiator's bearer token.
func (m *Manager) Create(ctx context.Context, clientID string) (*types.SessionMeta, error) {
	if !types.IsValidClientID(clientID) {
		return nil, types.ErrValidation
	}

	now := time.Now()
	meta := &types.SessionMeta{
		SessionID:        uuid.New().String(),
		Status:           types.StatusWaitingForPeer,
		CreatedAtEpochMs: now.UnixMilli(),
		ExpiresAtEpochMs: now.Add(m.ttl).UnixMilli(),
		Initiator: types.PeerInfo{
			ClientID: clientID,
			Token:    uuid.New().String(),
		},
	}

	if err := m.store.CreateSession(ctx, meta, m.ttl); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	log.Printf("Created session: id=%s status=%s", meta.SessionID, meta.Status)
	return meta, nil
}

// Join binds clientID as responder via compare-and-set. Exactly one of
// two racing joins commits; the loser observes types.ErrJoinRace. The
// updated record and the responder token share the session's remaining
// TTL, so neither outlives it.
func (m *Manager) Join(ctx context.Context, sessionID, clientID string) (*types.SessionMeta, error) {
	if !types.IsValidClientID(clientID) {
		return nil, types.ErrValidation
	}

	meta, version, err := m.store.GetSessionMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if meta.Status == types.StatusClosed {
		return nil, types.ErrSessionClosed
	}
	if meta.HasResponder() {
		return nil, types.ErrAlreadyJoined
	}

	updated := *meta
	updated.Status = types.StatusActive
	updated.Responder = types.PeerInfo{
		ClientID: clientID,
		Token:    uuid.New().String(),
	}

	remaining := time.Until(time.UnixMilli(meta.ExpiresAtEpochMs))
	if remaining < 0 {
		remaining = 0
	}

	if err := m.store.CommitJoin(ctx, &updated, version, remaining); err != nil {
		return nil, err
	}

	log.Printf("Session joined: id=%s status=%s", updated.SessionID, updated.Status)
	return &updated, nil
}

// RequireRole resolves a bearer token to its role. Unknown, expired and
// never-issued tokens are deliberately indistinguishable: all return
// types.ErrUnauthorized, so callers without a token cannot probe for
// session existence.
func (m *Manager) RequireRole(ctx context.Context, sessionID, token string) (types.Role, error) {
	if sessionID == "" || token == "" {
		return "", types.ErrUnauthorized
	}
	return m.store.TokenRole(ctx, sessionID, token)
}
