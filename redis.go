package luxsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis swap store.
type RedisConfig struct {
	// TTL is how long a swapped session may stay in Redis after its last
	// access. It should match the Manager expiration.
	TTL             time.Duration
	Prefix          string
	MaxSessionBytes int
}

// NewRedisStore creates a memory store that swaps idle sessions to Redis.
func NewRedisStore(client *backend.Client, cfg RedisConfig, opts ...Option) *MemoryStore {
	return NewMemoryStore(append(opts, WithSwapper(newRedisSwapper(client, cfg)))...)
}

type redisSwapper struct {
	client          *backend.Client
	ttl             time.Duration
	prefix          string
	maxSessionBytes int
	now             func() time.Time
}

func newRedisSwapper(client *backend.Client, cfg RedisConfig) *redisSwapper {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSwapTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "luxsession:"
	}
	return &redisSwapper{
		client:          client,
		ttl:             cfg.TTL,
		prefix:          cfg.Prefix,
		maxSessionBytes: cfg.MaxSessionBytes,
		now:             time.Now,
	}
}

func (r *redisSwapper) key(id uuid.UUID) string {
	return r.prefix + id.String()
}

// Store sets the session envelope with the time left until it expires.
func (r *redisSwapper) Store(ctx context.Context, id uuid.UUID, s *Session) error {
	buf := getBuffer()
	defer PutBuffer(buf)

	if err := encodeEnvelope(buf, s, r.maxSessionBytes); err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	ttl := s.LastAccess().Add(r.ttl).Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: %s", ErrSessionExpired, id)
	}

	if err := r.client.Set(ctx, r.key(id), buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Restore takes the swapped session with GETDEL, so only one caller ever gets it.
func (r *redisSwapper) Restore(ctx context.Context, id uuid.UUID) (*Session, error) {
	data, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	defer clear(data)

	lastAccess, blob, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	s := newKeyedSession(id, lastAccess)
	if err := decodeSession(blob, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Purge is a no-op: Redis expires swapped sessions through their TTL.
func (r *redisSwapper) Purge(ctx context.Context, before time.Time) error {
	return nil
}

func (r *redisSwapper) Close() error {
	return r.client.Close()
}
