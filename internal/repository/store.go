package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"honeypot-agent/internal/domain"
)

// ErrVersionConflict is returned by SaveTurn when the stored session changed
// since it was loaded.
var ErrVersionConflict = errors.New("repository: session version conflict")

// SessionStore persists session state and the per-turn audit trail.
type SessionStore interface {
	// Load returns the stored session. found is false for unseen sessions.
	Load(ctx context.Context, sessionID string) (state domain.SessionState, found bool, err error)
	// SaveTurn persists state together with the turn that produced it. state.Version
	// is the revision that was loaded; implementations bump it on success.
	SaveTurn(ctx context.Context, state domain.SessionState, turn domain.Turn) error
}

// maxConflictRetries bounds how often a turn is re-run after another writer
// changed the session between load and save.
const maxConflictRetries = 3

// TurnFunc mutates a loaded session and returns the audit record of the change.
// It may run more than once per call on version conflicts, so it must not
// cause effects outside the session it is handed.
type TurnFunc func(*domain.SessionState) (domain.Turn, error)

// Tx is a session held under its lock. Every Apply is a separate persisted
// write; no other turn of the same session runs between them in this process.
type Tx interface {
	Apply(fn TurnFunc) error
}

// Sessions serializes access to each session so exactly one turn at a time
// reads and writes it. Different sessions proceed in parallel.
type Sessions struct {
	store SessionStore
	locks keyedMutex
}

// NewSessions wraps store with per-session serialization.
func NewSessions(store SessionStore) (*Sessions, error) {
	if store == nil {
		return nil, errors.New("repository: store must not be nil")
	}
	return &Sessions{store: store}, nil
}

// WithSession loads (or creates) the session, runs fn on it while holding the
// session's lock, and persists the result with the turn fn returns. Nothing is
// saved when fn fails.
func (s *Sessions) WithSession(ctx context.Context, sessionID string, fn TurnFunc) error {
	return s.WithLock(ctx, sessionID, func(tx Tx) error {
		return tx.Apply(fn)
	})
}

// WithLock holds the session's lock for the duration of fn, letting it
// persist several writes around work that must happen exactly between them.
func (s *Sessions) WithLock(ctx context.Context, sessionID string, fn func(Tx) error) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: WithSession: session id is required")
	}

	unlock, err := s.locks.lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("repository: WithSession lock: %w", err)
	}
	defer unlock()

	return fn(&lockedSession{ctx: ctx, store: s.store, sessionID: sessionID})
}

type lockedSession struct {
	ctx       context.Context
	store     SessionStore
	sessionID string
}

// Apply loads the session, runs fn and saves. A version conflict means a
// writer outside this process got there first; the session is reloaded and fn
// re-run against the fresh state.
func (l *lockedSession) Apply(fn TurnFunc) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		if err = l.applyOnce(fn); !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}

func (l *lockedSession) applyOnce(fn TurnFunc) error {
	state, found, err := l.store.Load(l.ctx, l.sessionID)
	if err != nil {
		return fmt.Errorf("repository: WithSession load: %w", err)
	}
	if !found {
		state = domain.NewSessionState(l.sessionID)
	}

	turn, err := fn(&state)
	if err != nil {
		return err
	}
	turn.SessionID = l.sessionID

	if err := l.store.SaveTurn(l.ctx, state, turn); err != nil {
		return fmt.Errorf("repository: WithSession save: %w", err)
	}
	return nil
}

// keyedMutex hands out one lock per key. Entries are dropped once no
// goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
