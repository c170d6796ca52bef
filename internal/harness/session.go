// Package harness drives a long-lived REPL deterministically. Each submitted
// command batch carries a trailing sentinel statement that releases a
// completion signal once everything before it has been evaluated, so callers
// wait exactly as long as the REPL needs and never poll or sleep.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/repl-harness/internal/repl"
)

const (
	// DefaultTimeout bounds every Submit.
	DefaultTimeout = 30 * time.Second

	// DefaultStopTimeout bounds how long Stop waits for the REPL to exit.
	DefaultStopTimeout = 5 * time.Second
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateStopped
	// StateUnavailable means a precondition probe failed; the session never
	// started and dependent cases should be skipped.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures a Session. The zero value is usable.
type Options struct {
	// Timeout bounds each Submit. Defaults to DefaultTimeout.
	Timeout time.Duration

	// SignalName is the REPL global bound to the completion signal.
	// Defaults to repl.DefaultSignalName.
	SignalName string

	// Sentinel is the statement appended to every batch. Defaults to
	// SignalName + ".release()".
	Sentinel string

	// Target is passed through to the REPL.
	Target string

	// FailFast aborts a Submit as soon as the REPL reports an evaluation
	// error, instead of waiting for the timeout.
	FailFast bool

	// Color enables ANSI styling in the REPL's output.
	Color bool

	// Probes are run by Start; any failure marks the session unavailable.
	Probes []Probe

	// StopTimeout bounds Stop. Defaults to DefaultStopTimeout.
	StopTimeout time.Duration

	// REPL is the REPL implementation. Defaults to repl.Run.
	REPL repl.Func

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.SignalName == "" {
		o.SignalName = repl.DefaultSignalName
	}
	if o.Sentinel == "" {
		o.Sentinel = o.SignalName + ".release()"
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.REPL == nil {
		o.REPL = repl.Run
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Session owns one REPL instance and the plumbing used to drive it: the input
// bridge, the two capture buffers and the completion signal. It is meant to
// be created once per test suite, and used by one driver at a time.
type Session struct {
	id   string
	opts Options
	log  *slog.Logger

	bridge *Bridge
	stdout *CaptureBuffer
	stderr *CaptureBuffer
	signal *Signal
	// evalErrs carries REPL evaluation errors when FailFast is set.
	evalErrs chan error
	worker   Worker

	mu     sync.Mutex
	state  State
	reason error
}

// NewSession returns an uninitialized session.
func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Session{
		id:       id,
		opts:     opts,
		log:      opts.Logger.With("session", id),
		bridge:   NewBridge(),
		stdout:   &CaptureBuffer{},
		stderr:   &CaptureBuffer{},
		signal:   NewSignal(),
		evalErrs: make(chan error, 16),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Options returns the effective options, defaults applied.
func (s *Session) Options() Options { return s.opts }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UnavailableReason returns why the session is unavailable, or nil.
func (s *Session) UnavailableReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnavailable {
		return nil
	}
	return s.reason
}

// Start runs the precondition probes and, if they pass, launches the REPL on
// its own worker and returns without waiting for it to initialize. A failed
// probe is not an error: the session moves to StateUnavailable instead.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return fmt.Errorf("session %s is %s: %w", s.id, s.state, ErrAlreadyStarted)
	}

	if err := runProbes(ctx, s.opts.Probes); err != nil {
		s.state = StateUnavailable
		s.reason = err
		s.log.Warn("session unavailable", "reason", err)
		return nil
	}

	cfg := repl.Config{
		Target:     s.opts.Target,
		Stdin:      s.bridge,
		Stdout:     s.stdout,
		Stderr:     s.stderr,
		Signal:     s.signal,
		SignalName: s.opts.SignalName,
		Sentinel:   s.opts.Sentinel,
		Color:      s.opts.Color,
		Logger:     s.log,
	}
	if s.opts.FailFast {
		cfg.OnError = s.reportEvalError
	}
	err := s.worker.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.opts.REPL(ctx, cfg)
	})
	if err != nil {
		return fmt.Errorf("start session %s: %w", s.id, err)
	}
	s.state = StateRunning
	s.log.Info("session started", "target", s.opts.Target, "timeout", s.opts.Timeout)
	return nil
}

func (s *Session) reportEvalError(err error) {
	select {
	case s.evalErrs <- err:
	default:
		s.log.Warn("dropped evaluation error", "error", err)
	}
}

// Stop closes the input bridge and stops the REPL. It is safe to call in any
// state and more than once; only the first call has an effect.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateStopped
	s.mu.Unlock()

	_ = s.bridge.Close()
	if err := s.worker.Stop(s.opts.StopTimeout); err != nil {
		s.log.Error("session stop failed", "error", err)
		return fmt.Errorf("stop session %s: %w", s.id, err)
	}
	if err := s.worker.Err(); err != nil {
		s.log.Warn("repl exited with error", "error", err)
	}
	s.log.Info("session stopped", "previous", prev)
	return nil
}

// Reset discards completion units and evaluation errors left over from the
// previous case, for example by a batch that timed out and completed later.
// Captured output is never cleared.
func (s *Session) Reset() {
	drained := s.signal.Drain()
	errs := 0
drain:
	for {
		select {
		case <-s.evalErrs:
			errs++
		default:
			break drain
		}
	}
	if drained != 0 || errs != 0 {
		s.log.Debug("session reset", "signals", drained, "errors", errs)
	}
}

// Submit sends command to the REPL and waits for it to finish, returning the
// normalized stdout accumulated over the whole session.
func (s *Session) Submit(command string) (string, error) {
	return s.SubmitContext(context.Background(), command)
}

// SubmitContext is Submit with a caller context, which can cut the wait short
// but never extend it past the session timeout.
func (s *Session) SubmitContext(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", ErrEmptyCommand
	}
	if state := s.State(); state != StateRunning {
		return "", fmt.Errorf("submit to %s session: %w", state, ErrNotRunning)
	}

	if _, err := s.bridge.WriteString(command + "\n" + s.opts.Sentinel + "\n"); err != nil {
		return "", fmt.Errorf("submit command: %w", err)
	}

	waitCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	waitCtx, cancel := context.WithTimeout(waitCtx, s.opts.Timeout)
	defer cancel()

	go s.watch(waitCtx, abort)

	err := s.signal.Acquire(waitCtx)
	if err == nil {
		return s.stdout.Normalized(), nil
	}

	stdout, stderr := s.stdout.Normalized(), s.stderr.Normalized()
	cause := context.Cause(waitCtx)
	var aborted *evalAbort
	switch {
	case errors.As(cause, &aborted):
		return "", &EvalError{Command: command, Err: aborted.err, Stdout: stdout, Stderr: stderr}
	case errors.Is(cause, ErrWorkerExited):
		return "", fmt.Errorf("submit command: %w", cause)
	case errors.Is(cause, context.DeadlineExceeded) && ctx.Err() == nil:
		s.log.Warn("command timed out", "timeout", s.opts.Timeout, "queued", s.bridge.Pending())
		return "", &TimeoutError{Command: command, Stdout: stdout, Stderr: stderr, Timeout: s.opts.Timeout}
	default:
		return "", fmt.Errorf("submit command: %w", err)
	}
}

type evalAbort struct{ err error }

func (e *evalAbort) Error() string { return "evaluation failed: " + e.err.Error() }

// watch aborts a pending wait on a fast-fail evaluation error or REPL exit.
func (s *Session) watch(ctx context.Context, abort context.CancelCauseFunc) {
	var evalErrs <-chan error
	if s.opts.FailFast {
		evalErrs = s.evalErrs
	}
	select {
	case err := <-evalErrs:
		abort(&evalAbort{err: err})
	case <-s.worker.Done():
		if err := s.worker.Err(); err != nil {
			abort(fmt.Errorf("%w: %w", ErrWorkerExited, err))
			return
		}
		abort(ErrWorkerExited)
	case <-ctx.Done():
	}
}

// Stdout returns the normalized stdout captured so far.
func (s *Session) Stdout() string { return s.stdout.Normalized() }

// Stderr returns the normalized stderr captured so far.
func (s *Session) Stderr() string { return s.stderr.Normalized() }

// StdoutBuffer exposes the raw stdout capture, for callers that diff output
// between submissions via Len and Since.
func (s *Session) StdoutBuffer() *CaptureBuffer { return s.stdout }

// StderrBuffer exposes the raw stderr capture.
func (s *Session) StderrBuffer() *CaptureBuffer { return s.stderr }

// AssertContains checks that actual contains expected, attaching the
// session's current stderr to the failure.
func (s *Session) AssertContains(expected, actual string) error {
	return AssertContains(expected, actual, s.Stderr())
}
