// Package state defines session-state persistence and provides the in-memory
// reference implementation.
package state

import (
	"sync"
	"time"

	"checkin/pkg/proto"
)

// Store persists one SessionState record per conversation session. A missing
// session is observably distinct from a present-but-empty one (bool return).
// Implementations must give read-your-writes consistency for a single session
// within one process and be safe for concurrent access across session ids.
type Store interface {
	// Get returns the state for the session, and whether it exists.
	Get(sessionID string) (*proto.SessionState, bool, error)
	// Set stores the state. A ttl of zero means no expiry.
	Set(sessionID string, s *proto.SessionState, ttl time.Duration) error
	// Delete removes the session; deleting a missing session is not an error.
	Delete(sessionID string) error
}

type memoryEntry struct {
	state     *proto.SessionState
	expiresAt time.Time // zero = never
}

// MemoryStore is the reference Store: a mutex-guarded map with lazy expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Store. Expired entries read as missing.
func (m *MemoryStore) Get(sessionID string) (*proto.SessionState, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[sessionID]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, sessionID)
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.state, true, nil
}

// Set implements Store.
func (m *MemoryStore) Set(sessionID string, s *proto.SessionState, ttl time.Duration) error {
	entry := memoryEntry{state: s}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[sessionID] = entry
	m.mu.Unlock()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(sessionID string) error {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live entries, for tests and metrics.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
