package luxsession

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestSameSessionRequestsAreSerialized runs concurrent requests sharing one
// cookie. Each does a slow read-modify-write; without the session lock some
// increments would be lost.
func TestSameSessionRequestsAreSerialized(t *testing.T) {
	mgr := NewManager(Config{Worker: NewWorker(WithInline())})
	defer mgr.Close()

	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		visits := s.GetInt64("visits", 0)
		time.Sleep(time.Millisecond)
		s.SetInt64("visits", visits+1)
		fmt.Fprintf(w, "%d", visits+1)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	cookie := sessionCookie(t, w)

	const requests = 20
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := httptest.NewRequest("GET", "/", nil)
			r.AddCookie(cookie)
			handler.ServeHTTP(httptest.NewRecorder(), r)
		}()
	}
	wg.Wait()

	s, err := mgr.Store().Get(context.Background(), cookie.Value, DefaultExpiration)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer s.Lockable().Release()

	if got := s.GetInt64("visits", 0); got != requests+1 {
		t.Errorf("expected %d visits, got %d", requests+1, got)
	}
}

// TestConcurrentSetAndSwap mixes value writes with encoding, as a swap pass
// does, to catch unsynchronized map access under the race detector.
func TestConcurrentSetAndSwap(t *testing.T) {
	swapper, err := newFileSwapper(FileConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	session := newKeyedSession(newTestKey(t), time.Now())

	var wg sync.WaitGroup
	start := make(chan struct{})
	duration := 200 * time.Millisecond

	// Goroutine 1: Modifies the session constantly
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		end := time.Now().Add(duration)
		for i := 0; time.Now().Before(end); i++ {
			session.SetInt64(fmt.Sprintf("key-%d", i%8), int64(i))
		}
	}()

	// Goroutine 2: Stores the session constantly
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		end := time.Now().Add(duration)
		for time.Now().Before(end) {
			_ = swapper.Store(context.Background(), session.key, session)
		}
	}()

	close(start)
	wg.Wait()
}

func TestSwapSkipsSessionInUse(t *testing.T) {
	clock := newFakeClock()
	store, _ := newTestFileStore(t, clock)

	s := createReleased(t, store)
	held, err := store.Get(context.Background(), s.ID(), DefaultExpiration)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(DefaultIdleTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := store.SwapIdles(ctx, DefaultIdleTimeout); err != nil {
		t.Fatalf("SwapIdles failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatal("a session held by a request must not be swapped")
	}
	held.Lockable().Release()
}

// TestSwapRechecksIdlenessAfterLock reopens a session while a swap pass waits
// for its lock. The pass must notice the session is no longer idle.
func TestSwapRechecksIdlenessAfterLock(t *testing.T) {
	clock := newFakeClock()
	store, dir := newTestFileStore(t, clock)
	ctx := context.Background()

	s := createReleased(t, store)
	held, err := store.Get(ctx, s.ID(), DefaultExpiration)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(DefaultIdleTimeout)
	done := make(chan error, 1)
	go func() { done <- store.SwapIdles(ctx, DefaultIdleTimeout) }()

	// Let the pass take its snapshot and block on the lock.
	time.Sleep(50 * time.Millisecond)
	held.touch(clock.Now())
	held.Lockable().Release()

	if err := <-done; err != nil {
		t.Fatalf("SwapIdles failed: %v", err)
	}
	if store.Len() != 1 {
		t.Error("reopened session must stay resident")
	}
	if _, err := store.Get(ctx, s.ID(), DefaultExpiration); err != nil {
		t.Errorf("session must still be usable: %v", err)
	}
	if entries, _ := readSessionFiles(dir); len(entries) != 0 {
		t.Errorf("no file may be written for a reopened session: %v", entries)
	}
}

// TestGetRetriesAfterSwap parks a request on the lock of a session that is
// swapped out meanwhile. The request must find the restored copy.
func TestGetRetriesAfterSwap(t *testing.T) {
	clock := newFakeClock()
	store, _ := newTestFileStore(t, clock)
	ctx := context.Background()

	s := createReleased(t, store)
	s.SetString("user", "ada")

	// Hold the lock the way a swap pass does, then swap it out by hand.
	if err := s.Lockable().Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	result := make(chan *Session, 1)
	go func() {
		got, err := store.Get(ctx, s.ID(), DefaultExpiration)
		if err != nil {
			t.Errorf("Get failed: %v", err)
		}
		result <- got
	}()
	time.Sleep(50 * time.Millisecond)

	if err := store.swapper.Store(ctx, s.key, s); err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	delete(store.sessions, s.key)
	store.mu.Unlock()
	s.Lockable().Release()

	got := <-result
	if got == nil {
		t.Fatal("no session returned")
	}
	defer got.Lockable().Release()
	if got == s {
		t.Error("expected the restored instance, not the swapped out one")
	}
	if got.GetString("user", "") != "ada" {
		t.Error("restored session lost its values")
	}
}

func TestConcurrentRestoreSharesOneCopy(t *testing.T) {
	clock := newFakeClock()
	store, _ := newTestFileStore(t, clock)
	ctx := context.Background()

	s := createReleased(t, store)
	s.SetInt64("visits", 1)
	clock.Advance(DefaultIdleTimeout)
	if err := store.SwapIdles(ctx, DefaultIdleTimeout); err != nil {
		t.Fatal(err)
	}

	const readers = 8
	var wg sync.WaitGroup
	sessions := make(chan *Session, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.Get(ctx, s.ID(), DefaultExpiration)
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			got.SetInt64("visits", got.GetInt64("visits", 0)+1)
			got.Lockable().Release()
			sessions <- got
		}()
	}
	wg.Wait()
	close(sessions)

	var first *Session
	for got := range sessions {
		if first == nil {
			first = got
		}
		if got != first {
			t.Fatal("concurrent restores produced more than one session")
		}
	}
	if first == nil {
		t.Fatal("no reader got the session")
	}
	if v := first.GetInt64("visits", 0); v != readers+1 {
		t.Errorf("expected %d visits, got %d", readers+1, v)
	}
}
