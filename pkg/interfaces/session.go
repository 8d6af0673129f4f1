package interfaces

import (
	"context"

	"peerlink/pkg/types"
)

// SessionManager owns the session lifecycle: creation, race-free joins and
// token-to-role resolution. All signaling paths authorize through it.
type SessionManager interface {
	// Create allocates a session with a fresh id and initiator token,
	// status WaitingForPeer.
	Create(ctx context.Context, clientID string) (*types.SessionMeta, error)

	// Join binds clientID as the responder and activates the session.
	// Fails with types.ErrSessionNotFound, types.ErrSessionClosed,
	// types.ErrAlreadyJoined, or the transient types.ErrJoinRace when a
	// concurrent join wins the compare-and-set.
	Join(ctx context.Context, sessionID, clientID string) (*types.SessionMeta, error)

	// RequireRole resolves a bearer token to its role. Unknown, expired
	// and never-issued tokens all return types.ErrUnauthorized.
	RequireRole(ctx context.Context, sessionID, token string) (types.Role, error)
}

// SignalRelay is the pull-based store-and-forward signal transport.
type SignalRelay interface {
	// PostSignal authorizes the token and appends one record under the
	// sender's own role partition.
	PostSignal(ctx context.Context, sessionID, token string, signalType types.SignalType, payload []byte) error

	// ListSignalsFromPeer returns records written by the opposite role,
	// starting at cursor ("" = beginning), plus the next opaque cursor.
	// An empty next cursor means the page was empty and the caller should
	// poll again from its previous position. Repeating a cursor re-reads
	// the same window, so consumers must tolerate duplicates.
	ListSignalsFromPeer(ctx context.Context, sessionID, token, cursor string, limit int) ([]types.SignalRecord, string, error)
}
