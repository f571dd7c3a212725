// Package persistence provides the SQLite-backed session store. Sessions are
// stored as JSON rows keyed by session id, with an optional expiry column,
// so conversations survive process restarts.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"checkin/pkg/logx"
	"checkin/pkg/proto"
	"checkin/pkg/state"
)

var _ state.Store = (*SessionStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id  TEXT PRIMARY KEY,
    state       TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    expires_at  TEXT
);
`

// SessionStore is a state.Store backed by SQLite.
type SessionStore struct {
	db     *sql.DB
	logger *logx.Logger
	now    func() time.Time
}

// Open opens (creating if necessary) the session database at path.
// WAL mode and a busy timeout keep concurrent readers off the single writer.
func Open(path string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping session database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	// SQLite supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SessionStore{
		db:     db,
		logger: logx.NewLogger("persistence"),
		now:    time.Now,
	}
	store.logger.Info("session database opened: %s", path)
	return store, nil
}

// Get implements state.Store. Expired rows read as missing and are removed.
func (s *SessionStore) Get(sessionID string) (*proto.SessionState, bool, error) {
	var raw string
	var expiresAt sql.NullString
	err := s.db.QueryRow(
		`SELECT state, expires_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if expiresAt.Valid {
		expiry, parseErr := time.Parse(time.RFC3339Nano, expiresAt.String)
		if parseErr == nil && s.now().After(expiry) {
			if delErr := s.Delete(sessionID); delErr != nil {
				s.logger.Warn("failed to remove expired session %s: %v", sessionID, delErr)
			}
			return nil, false, nil
		}
	}

	var st proto.SessionState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, false, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &st, true, nil
}

// Set implements state.Store.
func (s *SessionStore) Set(sessionID string, st *proto.SessionState, ttl time.Duration) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}

	var expiresAt any
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UTC().Format(time.RFC3339Nano)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (session_id, state, updated_at, expires_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(session_id) DO UPDATE SET
             state = excluded.state,
             updated_at = excluded.updated_at,
             expires_at = excluded.expires_at`,
		sessionID, string(raw), s.now().UTC().Format(time.RFC3339Nano), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", sessionID, err)
	}
	return nil
}

// Delete implements state.Store.
func (s *SessionStore) Delete(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// Len returns the number of stored sessions, for the active-sessions gauge.
// Errors read as zero.
func (s *SessionStore) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		s.logger.Warn("failed to count sessions: %v", err)
		return 0
	}
	return n
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close session database: %w", err)
	}
	return nil
}
