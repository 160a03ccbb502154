package luxsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// workerQueueSize bounds the maintenance backlog. Producers block when it is full.
const workerQueueSize = 32

// Task is a unit of background maintenance.
type Task func(ctx context.Context) error

// Worker drains maintenance tasks on a single background goroutine.
type Worker struct {
	queue  chan Task
	inline bool
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithInline makes Execute run tasks synchronously on the caller's goroutine.
// Useful for deterministic tests and debugging.
func WithInline() WorkerOption {
	return func(w *Worker) {
		w.inline = true
	}
}

// WithWorkerLogger sets the logger used to report failed tasks.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates a stopped worker. Call Start to begin draining.
func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:   make(chan Task, workerQueueSize),
		logger:  nopLogger(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the consumer goroutine. It is a no-op for inline workers
// and on repeated calls. The loop ends when ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.inline {
		return
	}
	select {
	case <-w.stopped:
		return
	default:
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop terminates the consumer loop and waits for the current task to return.
// Tasks still queued are discarded.
func (w *Worker) Stop() {
	w.mu.Lock()
	select {
	case <-w.stopped:
	default:
		close(w.stopped)
	}
	started, cancel := w.started, w.cancel
	w.mu.Unlock()

	if started {
		cancel()
		<-w.done
	}
}

// Execute enqueues task. It blocks only while the queue is full, until ctx is
// done. Inline workers run the task before returning and swallow its error
// like the background loop does.
func (w *Worker) Execute(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("luxsession: nil task")
	}

	select {
	case <-w.stopped:
		return ErrWorkerStopped
	default:
	}

	if w.inline {
		w.invoke(ctx, task)
		return nil
	}

	select {
	case w.queue <- task:
		return nil
	case <-w.stopped:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.invoke(ctx, task)
		}
	}
}

// invoke runs one task, swallowing its error or panic so a bad task cannot
// kill the loop.
func (w *Worker) invoke(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("session task panicked", "err", fmt.Errorf("%v", r))
		}
	}()

	if err := task(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		w.logger.Warn("session task failed", "err", err)
	}
}
