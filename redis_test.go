package luxsession

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, cfg RedisConfig) (*MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	store := NewRedisStore(client, cfg)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisSwapper_RoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t, RedisConfig{TTL: time.Hour})
	testSwapperRoundTrip(t, store.swapper)
}

func TestRedisSwapper_StoreSetsTTL(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{TTL: 10 * time.Minute, Prefix: "test:sess:"})
	ctx := context.Background()

	id := uuid.New()
	s := newKeyedSession(id, time.Now().Add(-4*time.Minute))
	require.NoError(t, store.swapper.Store(ctx, id, s))

	key := "test:sess:" + id.String()
	assert.True(t, mr.Exists(key), "Swapped session should be set in Redis")

	ttl := mr.TTL(key)
	assert.Greater(t, ttl, 5*time.Minute)
	assert.LessOrEqual(t, ttl, 6*time.Minute, "TTL should count from the last access")

	mr.FastForward(7 * time.Minute)
	assert.False(t, mr.Exists(key), "Swapped session should expire with its TTL")

	_, err := store.swapper.Restore(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSwapper_RejectsExpired(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{TTL: time.Minute})

	id := uuid.New()
	s := newKeyedSession(id, time.Now().Add(-2*time.Minute))
	err := store.swapper.Store(context.Background(), id, s)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, mr.Keys())
}

func TestRedisSwapper_CorruptValue(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{})

	id := uuid.New()
	key := "luxsession:" + id.String()
	require.NoError(t, mr.Set(key, "garbage-not-a-session"))

	_, err := store.Get(context.Background(), id.String(), DefaultExpiration)
	assert.ErrorIs(t, err, ErrCorruptSession)
	assert.True(t, IsMiss(err))
	assert.False(t, mr.Exists(key), "Corrupt session should be consumed")
}

func TestRedisStore_SwapIdles(t *testing.T) {
	clock := newFakeClock()
	store, mr := newTestRedisStore(t, RedisConfig{TTL: DefaultExpiration})
	// The swapper compares against wall time, so drive the store from now.
	clock.t = time.Now()
	store.now = clock.Now
	ctx := context.Background()

	s := createReleased(t, store)
	s.SetInt64("visits", 3)

	clock.Advance(DefaultIdleTimeout)
	require.NoError(t, store.SwapIdles(ctx, DefaultIdleTimeout))
	assert.Equal(t, 0, store.Len())
	assert.Len(t, mr.Keys(), 1)

	got, err := store.Get(ctx, s.ID(), DefaultExpiration)
	require.NoError(t, err)
	defer got.Lockable().Release()

	assert.Equal(t, int64(3), got.GetInt64("visits", 0))
	assert.Empty(t, mr.Keys(), "Restore should consume the swapped copy")
}
