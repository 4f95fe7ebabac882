package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/question"
)

// DefaultTTL is the idle time after which a session expires.
const DefaultTTL = 30 * time.Minute

// Manager owns session lifecycle. Updates to one session are serialized;
// updates to different sessions run concurrently.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	locks *keyedMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the idle expiry.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the idle expiry.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Start creates a session in AwaitingReady with a fresh id. init, when
// non-nil, may seed the record before it is persisted.
func (m *Manager) Start(ctx context.Context, init func(*Session)) (*Session, error) {
	now := m.now().UTC()
	sess := &Session{
		ID:           uuid.NewString(),
		State:        interview.StateAwaitingReady,
		Coverage:     map[question.Topic]int{},
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if init != nil {
		init(sess)
	}

	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	slog.Debug("session started", "session_id", sess.ID)
	return sess, nil
}

// Get returns a session or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Update loads a session, applies fn and saves the result while holding the
// session's lock. If fn returns an error nothing is saved. The session is
// never recreated: a delete that lands while fn runs makes Update return
// ErrNotFound.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	unlock, err := m.locks.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("waiting for session %s: %w", id, err)
	}
	defer unlock()

	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(sess); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(m.ttl)

	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return sess, nil
}

// Delete removes a session. It does not wait for an in-flight update;
// that update fails to save instead.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	slog.Debug("session deleted", "session_id", id)
	return nil
}

// StartSweeper starts the store's periodic cleanup of expired sessions.
// Stores without a cleanup routine are swept lazily on read.
func (m *Manager) StartSweeper(interval time.Duration) {
	type sweeper interface {
		StartCleanupRoutine(time.Duration)
	}
	if s, ok := m.store.(sweeper); ok && interval > 0 {
		s.StartCleanupRoutine(interval)
	}
}

// Close closes the store.
func (m *Manager) Close() error {
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("closing session store: %w", err)
	}
	return nil
}

// keyedMutex hands out one lock per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires key's lock or returns ctx's error.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// held reports how many keys are tracked.
func (k *keyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
