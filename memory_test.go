package luxsession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func createReleased(t *testing.T, store Store) *Session {
	t.Helper()
	s, err := store.Create(context.Background(), DefaultExpiration)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	s.Lockable().Release()
	return s
}

func TestMemoryStore_CreateLocksSession(t *testing.T) {
	store := NewMemoryStore()

	s, err := store.Create(context.Background(), DefaultExpiration)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Errorf("session id %q is not a UUID: %v", s.ID(), err)
	}
	if s.Lockable().(*Lock).TryAcquire() {
		t.Error("created session must be returned locked")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 session, got %d", store.Len())
	}

	other := createReleased(t, store)
	if other.ID() == s.ID() {
		t.Error("expected distinct ids")
	}
}

func TestMemoryStore_GetInvalidAndUnknown(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"", "not-a-uuid", "../../etc/passwd"} {
		_, err := store.Get(ctx, id, DefaultExpiration)
		if !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("Get(%q): expected ErrInvalidSessionID, got %v", id, err)
		}
		if !IsMiss(err) {
			t.Errorf("Get(%q): invalid ids must count as a miss", id)
		}
	}

	_, err := store.Get(ctx, uuid.NewString(), DefaultExpiration)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStore_GetTouchesAndLocks(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	s := createReleased(t, store)
	s.SetString("user", "ada")

	clock.Advance(time.Minute)
	got, err := store.Get(ctx, s.ID(), DefaultExpiration)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer got.Lockable().Release()

	if got != s {
		t.Error("expected the resident session")
	}
	if !got.LastAccess().Equal(clock.Now()) {
		t.Errorf("expected last access %v, got %v", clock.Now(), got.LastAccess())
	}
	if got.GetString("user", "") != "ada" {
		t.Error("lost session value")
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := store.Get(short, s.ID(), DefaultExpiration); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout while the session is held, got %v", err)
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))

	s := createReleased(t, store)
	s.SetString("secret", "value")

	clock.Advance(DefaultExpiration)
	_, err := store.Get(context.Background(), s.ID(), DefaultExpiration)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if !s.Abandoned() || s.Len() != 0 {
		t.Error("expired session must be abandoned")
	}
	if store.Len() != 0 {
		t.Errorf("expired session must be removed, %d left", store.Len())
	}

	if _, err := store.Get(context.Background(), s.ID(), DefaultExpiration); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound afterwards, got %v", err)
	}
}

func TestMemoryStore_Collect(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	old := createReleased(t, store)
	clock.Advance(10 * time.Minute)
	fresh := createReleased(t, store)
	clock.Advance(6 * time.Minute)

	if err := store.Collect(ctx, DefaultExpiration); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", store.Len())
	}
	if !old.Abandoned() {
		t.Error("expired session must be abandoned")
	}
	if fresh.Abandoned() {
		t.Error("live session must survive collection")
	}

	// A second pass over the same state changes nothing.
	if err := store.Collect(ctx, DefaultExpiration); err != nil {
		t.Fatalf("second Collect failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected Collect to be idempotent, got %d sessions", store.Len())
	}

	got, err := store.Get(ctx, fresh.ID(), DefaultExpiration)
	if err != nil {
		t.Fatalf("Get of surviving session failed: %v", err)
	}
	got.Lockable().Release()
}

func TestMemoryStore_DeleteIgnoresForeignSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := createReleased(t, store)

	// Same id, different instance.
	impostor := newKeyedSession(s.key, time.Now())
	if err := store.Delete(ctx, impostor); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatal("Delete removed a session it does not own")
	}

	if err := store.Delete(ctx, nil); err != nil {
		t.Fatalf("Delete(nil) failed: %v", err)
	}
	if err := store.Delete(ctx, s); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Len() != 0 {
		t.Error("Delete did not remove the session")
	}
}

func TestMemoryStore_NoSwapper(t *testing.T) {
	store := NewMemoryStore()
	if store.SupportsIdleSwapping() {
		t.Error("plain memory store cannot swap")
	}

	createReleased(t, store)
	if err := store.SwapIdles(context.Background(), 0); err != nil {
		t.Fatalf("SwapIdles failed: %v", err)
	}
	if store.Len() != 1 {
		t.Error("SwapIdles without a swapper must keep sessions")
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
