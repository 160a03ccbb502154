package luxsession

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a server side bag of named byte values addressed by a cookie.
//
// The value methods are safe for concurrent use, but callers are expected to
// hold the session's Lockable while reading or writing it; the Manager
// acquires it on Open and releases it on CloseSession.
type Session struct {
	id  string
	key uuid.UUID

	mu         sync.Mutex
	values     map[string][]byte
	lastAccess time.Time
	abandoned  bool

	lock Lockable
}

// NewSession creates an empty session for a store that manages its own ids.
func NewSession(id string, lastAccess time.Time) *Session {
	return &Session{
		id:         id,
		values:     make(map[string][]byte),
		lastAccess: lastAccess,
		lock:       NewLock(),
	}
}

func newKeyedSession(key uuid.UUID, lastAccess time.Time) *Session {
	s := NewSession(key.String(), lastAccess)
	s.key = key
	return s
}

// ID returns the session identifier written into the cookie.
func (s *Session) ID() string {
	return s.id
}

// Lockable returns the session lock. It may be nil for sessions of stores that
// do not lock.
func (s *Session) Lockable() Lockable {
	return s.lock
}

// LastAccess returns the last time the session was opened.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastAccess = t
	s.mu.Unlock()
}

// Get returns the value stored under key. When the key is absent and def is
// not nil, def is invoked and a non-nil result is stored and returned.
func (s *Session) Get(key string, def func() []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key]; ok {
		return v
	}
	if def != nil {
		if v := def(); v != nil {
			s.values[key] = v
			return v
		}
	}
	return nil
}

// Set stores value under key. A nil value removes the key.
func (s *Session) Set(key string, value []byte) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		delete(s.values, key)
		return s
	}
	s.values[key] = value
	return s
}

// Unset removes key and reports whether it existed.
func (s *Session) Unset(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.values[key]
	delete(s.values, key)
	return ok
}

// Abandon clears every value and marks the session for deletion when it is
// closed. It always returns true.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.values)
	s.abandoned = true
	return true
}

// Abandoned reports whether Abandon was called.
func (s *Session) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

// Keys returns a sorted copy of the current keys.
func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
