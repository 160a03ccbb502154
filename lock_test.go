package luxsession

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLock_MutualExclusion(t *testing.T) {
	l := NewLock()
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Acquire(ctx); err != nil {
			t.Errorf("second acquire failed: %v", err)
			return
		}
		acquired.Store(true)
	}()

	time.Sleep(50 * time.Millisecond)
	if acquired.Load() {
		t.Fatal("second holder proceeded before the first released")
	}

	l.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second holder was not woken by Release")
	}
	if !acquired.Load() {
		t.Fatal("second holder did not acquire the lock")
	}
	l.Release()
}

func TestLock_AcquireCancelled(t *testing.T) {
	l := NewLock()
	if !l.TryAcquire() {
		t.Fatal("expected free lock")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestLock_FreeLockIgnoresCancelledContext(t *testing.T) {
	l := NewLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("free lock must be acquired even with a done context: %v", err)
	}
}

func TestLock_ReleaseUnheld(t *testing.T) {
	l := NewLock()
	l.Release()
	l.Release()

	if !l.TryAcquire() {
		t.Fatal("releasing an unheld lock must leave it free")
	}
	if l.TryAcquire() {
		t.Fatal("lock must be single holder")
	}
}
