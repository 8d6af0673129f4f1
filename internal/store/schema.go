package store

import (
	"database/sql"
	"fmt"
)

// All records carry an expires_at_ms column. Reads filter on it, the
// sweeper physically deletes behind it, so expiry is visible immediately
// even between sweeps. Dependent records (tokens, signals) are written
// with the session's remaining TTL so nothing outlives its parent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		meta          TEXT NOT NULL,
		version       INTEGER NOT NULL,
		expires_at_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		session_id    TEXT NOT NULL,
		token         TEXT NOT NULL,
		role          TEXT NOT NULL,
		expires_at_ms INTEGER NOT NULL,
		PRIMARY KEY (session_id, token)
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		session_id    TEXT NOT NULL,
		from_role     TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		id            TEXT NOT NULL,
		record        TEXT NOT NULL,
		expires_at_ms INTEGER NOT NULL,
		PRIMARY KEY (session_id, from_role, created_at_ms, id)
	)`,
	`CREATE TABLE IF NOT EXISTS buffered (
		session_id    TEXT NOT NULL,
		to_role       TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		id            TEXT NOT NULL,
		message       TEXT NOT NULL,
		expires_at_ms INTEGER NOT NULL,
		PRIMARY KEY (session_id, to_role, created_at_ms, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at_ms)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_expiry ON tokens(expires_at_ms)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_expiry ON signals(expires_at_ms)`,
	`CREATE INDEX IF NOT EXISTS idx_buffered_expiry ON buffered(expires_at_ms)`,
}

// initSchema creates all tables and indexes if they do not exist.
func initSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema statement: %w", err)
		}
	}
	return nil
}
