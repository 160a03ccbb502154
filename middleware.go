package luxsession

import (
	"context"
	"net/http"
	"sync"
)

type stateKey struct{}

// requestState tracks the session of one request; Regenerate may swap it.
type requestState struct {
	mu      sync.Mutex
	session *Session
}

func (s *requestState) get() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *requestState) set(session *Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

// Middleware opens the session before next runs and closes it afterwards.
// A session abandoned by the handler is deleted.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Open(w, r)
		if err != nil {
			m.logger.Error("failed to open session", "err", err)
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}

		state := &requestState{session: s}
		ctx := context.WithValue(r.Context(), stateKey{}, state)

		defer func() {
			cur := state.get()
			// The request context may already be cancelled; closing must still run.
			if _, err := m.CloseSession(context.WithoutCancel(ctx), cur, cur.Abandoned()); err != nil {
				m.logger.Warn("failed to close session", "session", cur.ID(), "err", err)
			}
		}()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the session opened by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	state, ok := ctx.Value(stateKey{}).(*requestState)
	if !ok {
		return nil
	}
	return state.get()
}
