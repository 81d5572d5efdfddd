package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"honeypot-agent/internal/domain"
)

// MemoryStore keeps sessions for the lifetime of the process. Sessions are
// never evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryRecord
}

type memoryRecord struct {
	state domain.SessionState
	turns []domain.Turn
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memoryRecord)}
}

// Load returns a copy of the stored session.
func (m *MemoryStore) Load(_ context.Context, sessionID string) (domain.SessionState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return domain.SessionState{}, false, nil
	}
	return rec.state.Clone(), true, nil
}

// SaveTurn stores a copy of state and appends turn to the session transcript.
func (m *MemoryStore) SaveTurn(_ context.Context, state domain.SessionState, turn domain.Turn) error {
	if state.SessionID == "" {
		return errors.New("repository: SaveTurn: session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[state.SessionID]
	if !ok {
		rec = &memoryRecord{}
		m.sessions[state.SessionID] = rec
	}
	if rec.state.Version != state.Version {
		return fmt.Errorf("repository: SaveTurn %q: %w", state.SessionID, ErrVersionConflict)
	}

	state = state.Clone()
	state.Version++
	rec.state = state
	rec.turns = append(rec.turns, turn)
	return nil
}

// Transcript returns the recorded turns of a session in order. Like the
// DynamoDB variant it serves operators and tests, not the request flow.
func (m *MemoryStore) Transcript(sessionID string) []domain.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]domain.Turn, len(rec.turns))
	copy(out, rec.turns)
	return out
}

// Put replaces the stored state of a session outright, bypassing version
// checks. Intended for seeding and operator repair.
func (m *MemoryStore) Put(state domain.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[state.SessionID]
	if !ok {
		rec = &memoryRecord{}
		m.sessions[state.SessionID] = rec
	}
	version := rec.state.Version
	rec.state = state.Clone()
	rec.state.Version = version
}
