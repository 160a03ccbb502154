package luxsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/google/uuid"
)

const defaultSwapTTL = 15 * time.Minute

// MemcachedConfig holds configuration for the Memcached swap store.
type MemcachedConfig struct {
	Servers []string
	// TTL is how long a swapped session may stay in the cache after its last
	// access. It should match the Manager expiration.
	TTL             time.Duration
	Prefix          string
	MaxSessionBytes int
	Timeout         time.Duration // Timeout for Memcached operations. Defaults to 0 (no timeout) if not set.
}

// NewMemcachedStore creates a memory store that swaps idle sessions to Memcached.
func NewMemcachedStore(ttl time.Duration, servers ...string) *MemoryStore {
	return NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers: servers,
		TTL:     ttl,
		// Security: Set a default timeout to prevent indefinite hanging if Memcached is down.
		// 1 second is usually sufficient for local/network cache.
		Timeout: 1 * time.Second,
	})
}

// NewMemcachedStoreWithConfig creates a Memcached swap store with custom configuration.
func NewMemcachedStoreWithConfig(cfg MemcachedConfig, opts ...Option) *MemoryStore {
	return NewMemoryStore(append(opts, WithSwapper(newMemcachedSwapper(cfg)))...)
}

type memcachedSwapper struct {
	client          *memcache.Client
	ttl             time.Duration
	prefix          string
	maxSessionBytes int
	now             func() time.Time
}

func newMemcachedSwapper(cfg MemcachedConfig) *memcachedSwapper {
	client := memcache.New(cfg.Servers...)
	client.Timeout = cfg.Timeout

	if cfg.TTL <= 0 {
		cfg.TTL = defaultSwapTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "luxsession:"
	}

	return &memcachedSwapper{
		client:          client,
		ttl:             cfg.TTL,
		prefix:          cfg.Prefix,
		maxSessionBytes: cfg.MaxSessionBytes,
		now:             time.Now,
	}
}

func (m *memcachedSwapper) key(id uuid.UUID) string {
	return m.prefix + id.String()
}

// Store sets the session envelope with an expiration derived from its last access.
func (m *memcachedSwapper) Store(ctx context.Context, id uuid.UUID, s *Session) error {
	buf := getBuffer()
	defer PutBuffer(buf)

	if err := encodeEnvelope(buf, s, m.maxSessionBytes); err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	now := m.now()
	expiresAt := s.LastAccess().Add(m.ttl)
	if !expiresAt.After(now) {
		return fmt.Errorf("%w: %s", ErrSessionExpired, id)
	}

	// Zero would mean "never expire".
	expiration := max(calculateMemcachedExpiration(now, expiresAt, m.ttl), 1)

	// memcache keeps the slice until Set returns; buf is recycled afterwards.
	err := m.client.Set(&memcache.Item{
		Key:        m.key(id),
		Value:      buf.Bytes(),
		Expiration: expiration,
	})
	if err != nil {
		return fmt.Errorf("failed to save to memcached: %w", err)
	}
	return nil
}

// Restore gets and deletes the swapped session.
func (m *memcachedSwapper) Restore(ctx context.Context, id uuid.UUID) (*Session, error) {
	item, err := m.client.Get(m.key(id))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from memcached: %w", err)
	}

	if err := m.client.Delete(item.Key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return nil, fmt.Errorf("failed to delete from memcached: %w", err)
	}
	defer clear(item.Value)

	lastAccess, blob, err := decodeEnvelope(item.Value)
	if err != nil {
		return nil, err
	}
	s := newKeyedSession(id, lastAccess)
	if err := decodeSession(blob, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Purge is a no-op for Memcached as it handles expiration automatically.
func (m *memcachedSwapper) Purge(ctx context.Context, before time.Time) error {
	return nil
}

// Close is a no-op for Memcached client.
func (m *memcachedSwapper) Close() error {
	return nil
}

// calculateMemcachedExpiration calculates the expiration value for Memcached.
// Memcached treats values > 30 days (60*60*24*30 seconds) as absolute Unix timestamps.
// Values <= 30 days are treated as a delta from the current time.
func calculateMemcachedExpiration(now time.Time, expiresAt time.Time, ttl time.Duration) int32 {
	const maxDelta = 30 * 24 * 60 * 60 // 30 days in seconds

	var duration time.Duration
	if !expiresAt.IsZero() {
		duration = expiresAt.Sub(now)
	} else {
		duration = ttl
	}

	// Beyond 30 days Memcached would read a delta as a timestamp in 1970.
	if duration > maxDelta*time.Second {
		if !expiresAt.IsZero() {
			return int32(expiresAt.Unix())
		}
		return int32(now.Add(ttl).Unix())
	}

	if duration < 0 {
		return 0
	}
	return int32(duration.Seconds())
}
