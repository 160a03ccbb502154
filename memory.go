package luxsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxLookupAttempts bounds how often Get retries after finding that the
// session it locked was swapped out or collected while it waited.
const maxLookupAttempts = 3

// MemoryStore keeps live sessions in a process wide table. With a Swapper it
// moves idle sessions to durable storage and restores them on demand.
type MemoryStore struct {
	mu       sync.Mutex // guards sessions
	sessions map[uuid.UUID]*Session

	swapper  Swapper
	restores singleflight.Group

	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithSwapper enables idle swapping to the given durable storage.
func WithSwapper(swapper Swapper) Option {
	return func(m *MemoryStore) {
		m.swapper = swapper
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *MemoryStore) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records store activity in metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *MemoryStore) {
		m.metrics = metrics
	}
}

// WithClock replaces time.Now as the store's time source.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore creates a volatile store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[uuid.UUID]*Session),
		logger:   nopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SupportsIdleSwapping reports whether the store has durable storage to swap to.
func (m *MemoryStore) SupportsIdleSwapping() bool {
	return m.swapper != nil
}

// Len returns the number of sessions resident in memory.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Create mints a session under a fresh UUID. Its lock is free, so acquiring
// it never waits on ctx.
func (m *MemoryStore) Create(ctx context.Context, expiration time.Duration) (*Session, error) {
	for {
		key, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session id: %w", err)
		}

		m.mu.Lock()
		if _, exists := m.sessions[key]; exists {
			m.mu.Unlock()
			continue
		}
		s := newKeyedSession(key, m.now())
		if err := s.lock.Acquire(ctx); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.sessions[key] = s
		m.metrics.setLive(len(m.sessions))
		m.mu.Unlock()

		m.metrics.sessionCreated()
		return s, nil
	}
}

// Get returns the locked session for id, restoring it from the swapper when
// it is not resident.
func (m *MemoryStore) Get(ctx context.Context, id string, expiration time.Duration) (*Session, error) {
	key, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	for attempt := 0; attempt < maxLookupAttempts; attempt++ {
		s, err := m.lookup(ctx, key)
		if err != nil {
			return nil, err
		}

		if err := s.lock.Acquire(ctx); err != nil {
			return nil, err
		}

		// Swapped out or collected while we waited: look it up again.
		if !m.isLive(key, s) {
			s.lock.Release()
			continue
		}

		now := m.now()
		if now.Sub(s.LastAccess()) >= expiration {
			s.Abandon()
			_ = m.Delete(ctx, s)
			s.lock.Release()
			m.metrics.sessionExpired()
			return nil, fmt.Errorf("%w: %s", ErrSessionExpired, id)
		}

		s.touch(now)
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func (m *MemoryStore) lookup(ctx context.Context, key uuid.UUID) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	if m.swapper == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}

	// Concurrent requests for one swapped id share a single restore, since
	// restoring consumes the durable artifact.
	v, err, _ := m.restores.Do(key.String(), func() (any, error) {
		// A restore that finished after our table check already inserted it.
		m.mu.Lock()
		existing, ok := m.sessions[key]
		m.mu.Unlock()
		if ok {
			return existing, nil
		}

		restored, err := m.swapper.Restore(ctx, key)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.sessions[key]; ok {
			return existing, nil
		}
		restored.key = key
		m.sessions[key] = restored
		m.metrics.setLive(len(m.sessions))
		m.metrics.sessionRestored()
		return restored, nil
	})
	if err != nil {
		if errors.Is(err, ErrCorruptSession) {
			m.logger.Warn("discarded corrupt swapped session", "session", key, "err", err)
		}
		return nil, err
	}
	return v.(*Session), nil
}

func (m *MemoryStore) isLive(key uuid.UUID, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key] == s
}

// Delete removes s from the table. Sessions that are not registered here are ignored.
func (m *MemoryStore) Delete(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.key]; ok && cur == s {
		delete(m.sessions, s.key)
		m.metrics.setLive(len(m.sessions))
	}
	return nil
}

// Flush is a no-op: resident sessions are the authoritative copy.
func (m *MemoryStore) Flush(ctx context.Context, s *Session) error {
	return nil
}

// Collect removes expired sessions. They are detached from the table under
// the structural lock and then abandoned one by one outside of it, so active
// requests never wait on a collection pass.
func (m *MemoryStore) Collect(ctx context.Context, expiration time.Duration) error {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for key, s := range m.sessions {
		if now.Sub(s.LastAccess()) >= expiration {
			expired = append(expired, s)
			delete(m.sessions, key)
		}
	}
	m.metrics.setLive(len(m.sessions))
	m.mu.Unlock()

	collected := 0
	for _, s := range expired {
		if err := s.lock.Acquire(ctx); err != nil {
			m.logger.Debug("skipped collecting busy session", "session", s.id, "err", err)
			continue
		}
		s.Abandon()
		_ = m.Delete(ctx, s)
		s.lock.Release()
		collected++
	}
	m.metrics.sessionsCollected(collected)

	if collected > 0 {
		m.logger.Debug("collected expired sessions", "count", collected)
	}

	if m.swapper != nil {
		if err := m.swapper.Purge(ctx, now.Add(-expiration)); err != nil {
			return fmt.Errorf("failed to purge swapped sessions: %w", err)
		}
	}
	return nil
}

// SwapIdles stores sessions idle for at least idleTimeout through the swapper,
// one goroutine per session. A session leaves memory only once it is stored.
func (m *MemoryStore) SwapIdles(ctx context.Context, idleTimeout time.Duration) error {
	if m.swapper == nil {
		return nil
	}
	now := m.now()

	m.mu.Lock()
	idle := make(map[uuid.UUID]*Session)
	for key, s := range m.sessions {
		if now.Sub(s.LastAccess()) >= idleTimeout {
			idle[key] = s
		}
	}
	m.mu.Unlock()

	var g errgroup.Group
	for key, s := range idle {
		g.Go(func() error {
			m.swapIdle(ctx, key, s, idleTimeout)
			return nil
		})
	}
	return g.Wait()
}

func (m *MemoryStore) swapIdle(ctx context.Context, key uuid.UUID, s *Session, idleTimeout time.Duration) {
	if err := s.lock.Acquire(ctx); err != nil {
		return
	}
	defer s.lock.Release()

	// Reopened or removed since the snapshot.
	if !m.isLive(key, s) || m.now().Sub(s.LastAccess()) < idleTimeout {
		return
	}

	if err := m.swapper.Store(ctx, key, s); err != nil {
		m.metrics.sessionSwapFailed()
		m.logger.Warn("failed to swap idle session", "session", key, "err", err)
		return
	}

	m.mu.Lock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
		m.metrics.setLive(len(m.sessions))
	}
	m.mu.Unlock()
	m.metrics.sessionSwapped()
}

// Close closes the swapper, if any.
func (m *MemoryStore) Close() error {
	if m.swapper != nil {
		return m.swapper.Close()
	}
	return nil
}
