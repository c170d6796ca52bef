package repl

import (
	"context"
	"errors"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// ErrRuntimeStopped is returned when work is scheduled on a closed Runtime.
var ErrRuntimeStopped = errors.New("event loop not running")

// Runtime owns the goja runtime and the event loop that serializes all access
// to it. goja.Runtime is not goroutine-safe: everything touching the VM must
// go through RunOnLoop or RunOnLoopSync.
type Runtime struct {
	loop *eventloop.EventLoop

	// vm is captured on the loop goroutine, and only used off it for Interrupt.
	vm *goja.Runtime

	mu      sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime starts an event loop and returns a Runtime bound to it. The
// runtime is closed when ctx is done, interrupting any running evaluation.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	registry := require.NewRegistry()
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(false),
	)

	childCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		loop:   loop,
		ctx:    childCtx,
		cancel: cancel,
	}

	loop.Start()

	vmCh := make(chan *goja.Runtime, 1)
	if !loop.RunOnLoop(func(vm *goja.Runtime) { vmCh <- vm }) {
		cancel()
		loop.Stop()
		return nil, errors.New("failed to initialize: event loop not running")
	}
	rt.vm = <-vmCh

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() {
			_ = rt.Close()
		})
	}

	return rt, nil
}

// Close interrupts any running evaluation and stops the event loop. It is safe
// to call multiple times.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()

	rt.cancel()
	rt.vm.Interrupt(ErrRuntimeStopped)
	rt.loop.Stop()
	return nil
}

// Done is closed once the runtime is closed.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.ctx.Done()
}

// IsRunning reports whether Close has not yet been called.
func (rt *Runtime) IsRunning() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return !rt.stopped
}

// RunOnLoop schedules fn on the loop goroutine, reporting whether it was
// accepted.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	if !rt.IsRunning() {
		return false
	}
	return rt.loop.RunOnLoop(fn)
}

// RunOnLoopSync runs fn on the loop goroutine and waits for it to return, or
// for the runtime to close.
func (rt *Runtime) RunOnLoopSync(fn func(*goja.Runtime) error) error {
	errCh := make(chan error, 1)
	if !rt.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return ErrRuntimeStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return ErrRuntimeStopped
	}
}
