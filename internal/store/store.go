package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	// SQLite driver, referenced only through the connection string.
	_ "github.com/mattn/go-sqlite3"

	"peerlink/pkg/interfaces"
	"peerlink/pkg/types"
)

// Compile-time interface check.
var _ interfaces.Store = (*Store)(nil)

// sweepInterval is how often the background sweeper deletes expired rows.
// Reads already filter on expires_at_ms, so the sweep only reclaims space.
const sweepInterval = time.Minute

// writeTimeout bounds how long a caller waits for the single writer.
const writeTimeout = 30 * time.Second

// Store implements interfaces.Store on SQLite. All writes funnel through
// a single goroutine: SQLite allows one writer at a time and serializing
// in-process avoids busy-wait contention. Reads go straight to the pooled
// connection.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Open opens (creating if needed) the database at path and starts the
// writer and sweeper goroutines.
func Open(path string, maxConnections int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(maxConnections)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	s := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.writeLoop()
	go s.sweepLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// each failed operation once after a short backoff.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil && retryable(err) {
				log.Printf("store write failed, retrying: %v", err)
				time.Sleep(250 * time.Millisecond)
				err = op.operation(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

// retryable reports whether a write error is worth a second attempt.
// Domain errors (race conflicts, not-found) are final.
func retryable(err error) bool {
	switch err {
	case types.ErrJoinRace, types.ErrSessionNotFound:
		return false
	}
	return true
}

// sweepLoop periodically deletes rows whose TTL has elapsed.
func (s *Store) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) sweep() {
	now := time.Now().UnixMilli()
	err := s.executeWrite(func(db *sql.DB) error {
		for _, table := range []string{"sessions", "tokens", "signals", "buffered"} {
			if _, err := db.Exec("DELETE FROM "+table+" WHERE expires_at_ms <= ?", now); err != nil {
				return fmt.Errorf("sweeping %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("store sweep failed: %v", err)
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(writeTimeout):
		return fmt.Errorf("write operation timed out")
	case <-s.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// CreateSession writes the session record (version 1) and the initiator's
// token binding in one transaction.
func (s *Store) CreateSession(ctx context.Context, meta *types.SessionMeta, ttl time.Duration) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling session meta: %w", err)
	}
	expiresAt := time.Now().Add(ttl).UnixMilli()

	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			"INSERT INTO sessions (id, meta, version, expires_at_ms) VALUES (?, ?, 1, ?)",
			meta.SessionID, string(metaJSON), expiresAt,
		)
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO tokens (session_id, token, role, expires_at_ms) VALUES (?, ?, ?, ?)",
			meta.SessionID, meta.Initiator.Token, string(types.RoleInitiator), expiresAt,
		)
		if err != nil {
			return fmt.Errorf("inserting initiator token: %w", err)
		}

		return tx.Commit()
	})
}

// GetSessionMeta returns the live session record and its version.
func (s *Store) GetSessionMeta(ctx context.Context, sessionID string) (*types.SessionMeta, int64, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT meta, version FROM sessions WHERE id = ? AND expires_at_ms > ?",
		sessionID, time.Now().UnixMilli(),
	)

	var metaJSON string
	var version int64
	if err := row.Scan(&metaJSON, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, types.ErrSessionNotFound
		}
		return nil, 0, fmt.Errorf("querying session: %w", err)
	}

	var meta types.SessionMeta
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, 0, fmt.Errorf("unmarshaling session meta: %w", err)
	}
	return &meta, version, nil
}

// CommitJoin is the compare-and-set at the heart of race-free joins. The
// session row is replaced only if its version still equals
// expectedVersion; the responder token binding lands in the same
// transaction, so a loser of the race observes types.ErrJoinRace and
// writes nothing.
func (s *Store) CommitJoin(ctx context.Context, meta *types.SessionMeta, expectedVersion int64, ttl time.Duration) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling session meta: %w", err)
	}
	now := time.Now().UnixMilli()
	expiresAt := now + ttl.Milliseconds()

	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			"UPDATE sessions SET meta = ?, version = version + 1 WHERE id = ? AND version = ? AND expires_at_ms > ?",
			string(metaJSON), meta.SessionID, expectedVersion, now,
		)
		if err != nil {
			return fmt.Errorf("updating session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %w", err)
		}
		if affected == 0 {
			// Distinguish a vanished session from a lost race so the
			// caller can surface the right error.
			var exists int
			err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM sessions WHERE id = ? AND expires_at_ms > ?",
				meta.SessionID, now,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("checking session existence: %w", err)
			}
			if exists == 0 {
				return types.ErrSessionNotFound
			}
			return types.ErrJoinRace
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO tokens (session_id, token, role, expires_at_ms) VALUES (?, ?, ?, ?)",
			meta.SessionID, meta.Responder.Token, string(types.RoleResponder), expiresAt,
		)
		if err != nil {
			return fmt.Errorf("inserting responder token: %w", err)
		}

		return tx.Commit()
	})
}

// TokenRole resolves a live token binding. Unknown and expired bindings
// are indistinguishable by design.
func (s *Store) TokenRole(ctx context.Context, sessionID, token string) (types.Role, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT role FROM tokens WHERE session_id = ? AND token = ? AND expires_at_ms > ?",
		sessionID, token, time.Now().UnixMilli(),
	)

	var role string
	if err := row.Scan(&role); err != nil {
		if err == sql.ErrNoRows {
			return "", types.ErrUnauthorized
		}
		return "", fmt.Errorf("querying token: %w", err)
	}
	return types.Role(role), nil
}

// AppendSignal stores one signal record under the sender's role partition.
func (s *Store) AppendSignal(ctx context.Context, sessionID, id string, record *types.SignalRecord, ttl time.Duration) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling signal record: %w", err)
	}
	expiresAt := time.Now().Add(ttl).UnixMilli()

	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO signals (session_id, from_role, created_at_ms, id, record, expires_at_ms) VALUES (?, ?, ?, ?, ?, ?)",
			sessionID, string(record.FromRole), record.CreatedAtEpochMs, id, string(recordJSON), expiresAt,
		)
		if err != nil {
			return fmt.Errorf("inserting signal: %w", err)
		}
		return nil
	})
}

// ListSignals pages through one role's partition in (created_at, id)
// order, strictly after the given position.
func (s *Store) ListSignals(ctx context.Context, sessionID string, fromRole types.Role, afterCreatedAtMs int64, afterID string, limit int) ([]interfaces.StoredSignal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record FROM signals
		 WHERE session_id = ? AND from_role = ? AND expires_at_ms > ?
		   AND (created_at_ms > ? OR (created_at_ms = ? AND id > ?))
		 ORDER BY created_at_ms, id
		 LIMIT ?`,
		sessionID, string(fromRole), time.Now().UnixMilli(),
		afterCreatedAtMs, afterCreatedAtMs, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []interfaces.StoredSignal
	for rows.Next() {
		var id, recordJSON string
		if err := rows.Scan(&id, &recordJSON); err != nil {
			return nil, fmt.Errorf("scanning signal row: %w", err)
		}
		var record types.SignalRecord
		if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
			return nil, fmt.Errorf("unmarshaling signal record: %w", err)
		}
		out = append(out, interfaces.StoredSignal{ID: id, Record: record})
	}
	return out, rows.Err()
}

// BufferMessage parks a push-channel envelope for a disconnected role.
func (s *Store) BufferMessage(ctx context.Context, sessionID string, toRole types.Role, message json.RawMessage, ttl time.Duration) error {
	now := time.Now()
	id := newBufferID()

	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO buffered (session_id, to_role, created_at_ms, id, message, expires_at_ms) VALUES (?, ?, ?, ?, ?, ?)",
			sessionID, string(toRole), now.UnixMilli(), id, string(message), now.Add(ttl).UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("inserting buffered message: %w", err)
		}
		return nil
	})
}

// ListBuffered returns all live buffered messages for a role in creation
// order.
func (s *Store) ListBuffered(ctx context.Context, sessionID string, toRole types.Role) ([]types.BufferedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message FROM buffered
		 WHERE session_id = ? AND to_role = ? AND expires_at_ms > ?
		 ORDER BY created_at_ms, id`,
		sessionID, string(toRole), time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying buffered messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.BufferedMessage
	for rows.Next() {
		var msg types.BufferedMessage
		var messageJSON string
		if err := rows.Scan(&msg.ID, &messageJSON); err != nil {
			return nil, fmt.Errorf("scanning buffered row: %w", err)
		}
		msg.Message = json.RawMessage(messageJSON)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// DeleteBuffered removes one buffered message after it has been delivered.
func (s *Store) DeleteBuffered(ctx context.Context, sessionID string, toRole types.Role, id string) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"DELETE FROM buffered WHERE session_id = ? AND to_role = ? AND id = ?",
			sessionID, string(toRole), id,
		)
		if err != nil {
			return fmt.Errorf("deleting buffered message: %w", err)
		}
		return nil
	})
}

func newBufferID() string {
	return uuid.New().String()
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the writer and sweeper and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
