package luxsession

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultExpiration  = 15 * time.Minute
	DefaultIdleTimeout = 5 * time.Minute
	DefaultGCTimer     = 5 * time.Minute
)

// Manager bridges the session cookie of each request to a Store and schedules
// store maintenance on a background Worker.
type Manager struct {
	store       Store
	worker      *Worker
	ownsWorker  bool
	timeout     time.Duration
	expiration  time.Duration
	idleTimeout time.Duration
	cookie      CookieOptions
	consent     func(*http.Request) bool
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time

	passiveMu sync.Mutex
	gc        passiveTask
	idle      passiveTask

	closeOnce sync.Once
	closeErr  error
}

type Config struct {
	// Store is the session backend. Defaults to a MemoryStore.
	Store Store
	// Worker runs maintenance. When nil, the Manager starts and owns one.
	Worker *Worker
	// Timeout bounds one open, close or maintenance pass.
	Timeout time.Duration
	// Expiration is the idle time after which a session is dropped.
	Expiration time.Duration
	// IdleTimeout is the idle time after which a session may be swapped out.
	// It is also the minimum interval between idle swap passes.
	IdleTimeout time.Duration
	// GCTimer is the minimum interval between garbage collection passes.
	GCTimer time.Duration
	// Cookies customizes the cookie policy, starting from DefaultCookieOptions.
	Cookies func(*CookieOptions)
	// Consent reports whether the client accepted non-essential cookies.
	Consent func(*http.Request) bool
	Logger  *slog.Logger
	Metrics *Metrics
	// Clock replaces time.Now for the Manager and its default store.
	Clock func() time.Time
}

type passiveTask struct {
	name     string
	interval time.Duration
	last     time.Time
	running  bool
	run      func(ctx context.Context) error
}

func NewManager(cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.GCTimer <= 0 {
		cfg.GCTimer = DefaultGCTimer
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(WithLogger(cfg.Logger), WithMetrics(cfg.Metrics), WithClock(cfg.Clock))
	}

	m := &Manager{
		store:       cfg.Store,
		worker:      cfg.Worker,
		timeout:     cfg.Timeout,
		expiration:  cfg.Expiration,
		idleTimeout: cfg.IdleTimeout,
		cookie:      DefaultCookieOptions(),
		consent:     cfg.Consent,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		now:         cfg.Clock,
	}

	if cfg.Cookies != nil {
		cfg.Cookies(&m.cookie)
	}
	if m.cookie.Name == "" {
		m.cookie.Name = DefaultCookieName
	}

	if m.worker == nil {
		m.worker = NewWorker(WithWorkerLogger(cfg.Logger))
		m.worker.Start(context.Background())
		m.ownsWorker = true
	}

	now := m.now()
	m.gc = passiveTask{
		name:     "collect",
		interval: cfg.GCTimer,
		last:     now,
		run: func(ctx context.Context) error {
			return m.store.Collect(ctx, m.expiration)
		},
	}
	m.idle = passiveTask{
		name:     "swap-idles",
		interval: cfg.IdleTimeout,
		last:     now,
		run: func(ctx context.Context) error {
			return m.store.SwapIdles(ctx, m.idleTimeout)
		},
	}

	return m
}

// Store returns the backend of the manager.
func (m *Manager) Store() Store {
	return m.store
}

// Close stops an owned worker and closes the store.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.ownsWorker {
			m.worker.Stop()
		}
		m.closeErr = m.store.Close()
	})
	return m.closeErr
}

// Open returns the locked session referenced by the request cookie, or a new
// one whose id is written to the response cookie. Lookup failures never
// surface; only a failure to create a session is returned.
func (m *Manager) Open(w http.ResponseWriter, r *http.Request) (*Session, error) {
	defer m.executePassiveTasks()

	ctx, cancel := context.WithTimeout(r.Context(), m.timeout)
	defer cancel()

	if c, err := r.Cookie(m.cookie.Name); err == nil && c.Value != "" {
		s, err := m.store.Get(ctx, c.Value, m.expiration)
		if err == nil {
			m.metrics.sessionOpened()
			return s, nil
		}
		if IsMiss(err) {
			m.logger.Debug("session miss", "err", err)
		} else {
			m.logger.Warn("failed to load session", "err", err)
		}
	}

	s, err := m.store.Create(ctx, m.expiration)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	m.setCookie(w, r, s.ID())
	m.metrics.sessionOpened()
	return s, nil
}

// CloseSession flushes or, when abandon is set, deletes the session and
// releases its lock. It reports false when s is nil.
func (m *Manager) CloseSession(ctx context.Context, s *Session, abandon bool) (bool, error) {
	defer m.executePassiveTasks()

	if s == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var err error
	if abandon {
		s.Abandon()
		if err = m.store.Delete(ctx, s); err != nil {
			err = fmt.Errorf("failed to delete session: %w", err)
		}
	} else if err = m.store.Flush(ctx, s); err != nil {
		err = fmt.Errorf("failed to flush session: %w", err)
	}

	if l := s.Lockable(); l != nil {
		l.Release()
	}
	return true, err
}

// Destroy abandons the session and clears the cookie. The session is deleted
// when it is closed; Middleware does that after the handler returns.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) {
	s.Abandon()
	http.SetCookie(w, m.cookie.expired(r))
}

// Regenerate moves the values of s to a session with a new id, to prevent
// session fixation, and deletes s. The returned session is locked; s is
// released. Inside Middleware the request context follows the new session.
func (m *Manager) Regenerate(w http.ResponseWriter, r *http.Request, s *Session) (*Session, error) {
	ctx, cancel := context.WithTimeout(r.Context(), m.timeout)
	defer cancel()

	fresh, err := m.store.Create(ctx, m.expiration)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	values := maps.Clone(s.values)
	s.mu.Unlock()
	for k, v := range values {
		fresh.Set(k, v)
	}

	s.Abandon()
	if err := m.store.Delete(ctx, s); err != nil {
		// Fail closed: the old id may still be valid, so drop both and log out.
		fresh.Abandon()
		_ = m.store.Delete(ctx, fresh)
		if l := fresh.Lockable(); l != nil {
			l.Release()
		}
		http.SetCookie(w, m.cookie.expired(r))
		return nil, fmt.Errorf("failed to delete regenerated session: %w", err)
	}
	if l := s.Lockable(); l != nil {
		l.Release()
	}

	m.setCookie(w, r, fresh.ID())
	if state, ok := r.Context().Value(stateKey{}).(*requestState); ok {
		state.set(fresh)
	}
	return fresh, nil
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, id string) {
	if !m.cookie.Essential && m.consent != nil && !m.consent(r) {
		return
	}
	http.SetCookie(w, m.cookie.cookie(r, id))
}

// executePassiveTasks submits garbage collection and idle swapping to the
// worker when their interval elapsed and their previous run finished.
func (m *Manager) executePassiveTasks() {
	now := m.now()

	m.passiveMu.Lock()
	due := make([]*passiveTask, 0, 2)
	for _, t := range []*passiveTask{&m.gc, &m.idle} {
		if t.running || now.Sub(t.last) < t.interval {
			continue
		}
		t.last = now
		t.running = true
		due = append(due, t)
	}
	m.passiveMu.Unlock()

	for _, t := range due {
		if err := m.worker.Execute(context.Background(), m.passive(t)); err != nil {
			m.logger.Debug("session maintenance not scheduled", "task", t.name, "err", err)
			m.finishPassive(t)
		}
	}
}

func (m *Manager) passive(t *passiveTask) Task {
	return func(ctx context.Context) error {
		defer m.finishPassive(t)

		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		if err := t.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
		return nil
	}
}

func (m *Manager) finishPassive(t *passiveTask) {
	m.passiveMu.Lock()
	t.running = false
	m.passiveMu.Unlock()
}
