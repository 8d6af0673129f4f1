package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"peerlink/pkg/types"
)

// StoredSignal pairs a signal record with its storage id. The id breaks
// ordering ties between records created in the same millisecond and is
// the stable component of list cursors.
type StoredSignal struct {
	ID     string
	Record types.SignalRecord
}

// Store is the durable, TTL-scoped record store backing sessions, token
// bindings, signal records and push-channel buffers. Expired records are
// invisible to reads and physically removed by a background sweeper.
//
// The session record carries a version; CommitJoin is the atomic
// compare-and-set on which race-free joins depend.
type Store interface {
	// CreateSession writes a fresh session record (version 1) together
	// with the initiator's token binding, both scoped to ttl.
	CreateSession(ctx context.Context, meta *types.SessionMeta, ttl time.Duration) error

	// GetSessionMeta returns the session record and its current version,
	// or types.ErrSessionNotFound.
	GetSessionMeta(ctx context.Context, sessionID string) (*types.SessionMeta, int64, error)

	// CommitJoin replaces the session record and writes the responder's
	// token binding in one transaction, but only if the stored version
	// still equals expectedVersion. A version mismatch returns
	// types.ErrJoinRace and writes nothing.
	CommitJoin(ctx context.Context, meta *types.SessionMeta, expectedVersion int64, ttl time.Duration) error

	// TokenRole resolves a token binding to its role, or
	// types.ErrUnauthorized if no live binding exists.
	TokenRole(ctx context.Context, sessionID, token string) (types.Role, error)

	// AppendSignal stores one signal record under the sender's role
	// partition, keyed by (createdAt, id) for ordered listing.
	AppendSignal(ctx context.Context, sessionID, id string, record *types.SignalRecord, ttl time.Duration) error

	// ListSignals returns up to limit records from fromRole's partition,
	// in (createdAt, id) order, strictly after the (afterCreatedAtMs,
	// afterID) position. Zero values start from the beginning.
	ListSignals(ctx context.Context, sessionID string, fromRole types.Role, afterCreatedAtMs int64, afterID string, limit int) ([]StoredSignal, error)

	// BufferMessage parks a push-channel envelope for a role with no live
	// socket. Buffered messages carry their own short TTL.
	BufferMessage(ctx context.Context, sessionID string, toRole types.Role, message json.RawMessage, ttl time.Duration) error

	// ListBuffered returns all live buffered messages for a role in
	// creation order.
	ListBuffered(ctx context.Context, sessionID string, toRole types.Role) ([]types.BufferedMessage, error)

	// DeleteBuffered removes one buffered message after delivery.
	DeleteBuffered(ctx context.Context, sessionID string, toRole types.Role, id string) error

	// HealthCheck verifies database connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes the writer and closes the underlying database.
	Close() error
}
