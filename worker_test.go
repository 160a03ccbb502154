package luxsession

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorker_RunsTasksInOrder(t *testing.T) {
	w := NewWorker()
	w.Start(context.Background())
	defer w.Stop()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := w.Execute(context.Background(), func(ctx context.Context) error {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}
	wg.Wait()

	if !slices.Equal(order, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Errorf("tasks ran out of order: %v", order)
	}
}

func TestWorker_SurvivesErrorsAndPanics(t *testing.T) {
	w := NewWorker()
	w.Start(context.Background())
	defer w.Stop()

	done := make(chan struct{})
	tasks := []Task{
		func(ctx context.Context) error { return errors.New("boom") },
		func(ctx context.Context) error { panic("kaboom") },
		func(ctx context.Context) error { close(done); return nil },
	}
	for _, task := range tasks {
		if err := w.Execute(context.Background(), task); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stopped draining after a failing task")
	}
}

func TestWorker_Backpressure(t *testing.T) {
	// Not started, so nothing drains the queue.
	w := NewWorker()
	defer w.Stop()

	noop := func(ctx context.Context) error { return nil }
	for i := 0; i < workerQueueSize; i++ {
		if err := w.Execute(context.Background(), noop); err != nil {
			t.Fatalf("Execute %d failed before the queue was full: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := w.Execute(ctx, noop); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected producer to block until its deadline, got %v", err)
	}
}

func TestWorker_Stop(t *testing.T) {
	w := NewWorker()
	w.Start(context.Background())

	started := make(chan struct{})
	var cancelled atomic.Bool
	err := w.Execute(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	<-started

	w.Stop()
	if !cancelled.Load() {
		t.Error("Stop must cancel and wait for the running task")
	}

	if err := w.Execute(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped, got %v", err)
	}

	// Stop and Start are safe after stopping.
	w.Stop()
	w.Start(context.Background())
}

func TestWorker_Inline(t *testing.T) {
	w := NewWorker(WithInline())
	w.Start(context.Background())

	ran := false
	err := w.Execute(context.Background(), func(ctx context.Context) error {
		ran = true
		return errors.New("swallowed")
	})
	if err != nil {
		t.Fatalf("inline Execute must swallow task errors, got %v", err)
	}
	if !ran {
		t.Fatal("inline Execute must run the task before returning")
	}

	if err := w.Execute(context.Background(), nil); err == nil {
		t.Error("expected error for nil task")
	}

	w.Stop()
	if err := w.Execute(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped, got %v", err)
	}
}
