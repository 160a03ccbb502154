package luxsession

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for session backends.
//
// Sessions returned by Create and Get are locked; the caller releases them,
// usually through Manager.CloseSession.
type Store interface {
	// Create mints, locks and registers a new session.
	Create(ctx context.Context, expiration time.Duration) (*Session, error)
	// Get returns the locked live session for id. Expected misses are reported
	// with errors for which IsMiss returns true.
	Get(ctx context.Context, id string, expiration time.Duration) (*Session, error)
	// Delete removes a session. The caller holds its lock.
	Delete(ctx context.Context, s *Session) error
	// Flush persists pending changes of a session. The caller holds its lock.
	Flush(ctx context.Context, s *Session) error
	// Collect removes sessions idle for at least expiration.
	Collect(ctx context.Context, expiration time.Duration) error
	// SwapIdles moves sessions idle for at least idleTimeout to durable storage.
	SwapIdles(ctx context.Context, idleTimeout time.Duration) error
	// Close releases the resources held by the store.
	Close() error
}

// Swapper is the durable storage a MemoryStore moves idle sessions to.
type Swapper interface {
	// Store persists s under id. On error the session stays in memory.
	Store(ctx context.Context, id uuid.UUID, s *Session) error
	// Restore loads and removes the session stored under id. It returns
	// ErrSessionNotFound when nothing is stored, and ErrCorruptSession after
	// discarding an unreadable artifact.
	Restore(ctx context.Context, id uuid.UUID) (*Session, error)
	// Purge drops stored sessions last accessed before the cutoff.
	Purge(ctx context.Context, before time.Time) error
	// Close releases the resources held by the swapper.
	Close() error
}
