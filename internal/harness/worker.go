package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAlreadyStarted is returned when a Worker or Session is started twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrStopTimeout is returned by Worker.Stop when the worker did not exit in
	// time.
	ErrStopTimeout = errors.New("worker did not stop in time")
)

// Worker runs one long-lived function on a dedicated goroutine. It is the
// execution context of the REPL: started once, never joined by callers other
// than Stop, and cancelled through its context.
type Worker struct {
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Go starts fn on a new goroutine and returns immediately. The context passed
// to fn is cancelled by Stop, or when ctx is done.
func (w *Worker) Go(ctx context.Context, fn func(ctx context.Context) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker: %w", ErrAlreadyStarted)
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, fn)
	return nil
}

func (w *Worker) run(ctx context.Context, fn func(ctx context.Context) error) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		close(w.done)
	}()
	err = fn(ctx)
}

// Stop cancels the worker and waits up to timeout for it to exit. A timeout of
// zero or less waits indefinitely. Stop is safe to call on a worker that was
// never started, and more than once.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()

	if timeout <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrStopTimeout, timeout)
	}
}

// Done returns a channel closed once the worker function has returned. It is
// nil if the worker was never started.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Err returns the error the worker function exited with. Cancellation is not
// reported as an error.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
