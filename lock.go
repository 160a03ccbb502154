package luxsession

import (
	"context"
	"fmt"
)

// Lockable is the cooperative, single-holder lock bound to one session.
type Lockable interface {
	// Acquire blocks until the caller holds the lock or ctx is done.
	Acquire(ctx context.Context) error
	// Release gives up the lock. It always succeeds.
	Release()
}

// Lock is a channel based Lockable. The zero value is not usable; use NewLock.
type Lock struct {
	held chan struct{}
}

// NewLock returns an unheld lock.
func NewLock() *Lock {
	return &Lock{held: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is free or ctx is done. On cancellation the
// returned error wraps both ErrLockTimeout and the context error.
func (l *Lock) Acquire(ctx context.Context) error {
	// Fast path so an already cancelled context still gets a free lock.
	select {
	case l.held <- struct{}{}:
		return nil
	default:
	}

	select {
	case l.held <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (l *Lock) TryAcquire() bool {
	select {
	case l.held <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock, waking at most one waiter. Releasing an unheld
// lock is a no-op.
func (l *Lock) Release() {
	select {
	case <-l.held:
	default:
	}
}
