package harness

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/repl-harness/internal/repl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s := NewSession(opts)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { assert.NoError(t, s.Stop()) })
	return s
}

func TestSession_Defaults(t *testing.T) {
	s := NewSession(Options{})
	opts := s.Options()
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, DefaultStopTimeout, opts.StopTimeout)
	assert.Equal(t, "semaphore", opts.SignalName)
	assert.Equal(t, "semaphore.release()", opts.Sentinel)
	assert.NotEmpty(t, s.ID())
	assert.NotEqual(t, s.ID(), NewSession(Options{}).ID())
	assert.Equal(t, StateUninitialized, s.State())

	custom := NewSession(Options{SignalName: "done"}).Options()
	assert.Equal(t, "done.release()", custom.Sentinel)
}

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession(Options{Timeout: 5 * time.Second})

	_, err := s.Submit("1")
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	out, err := s.Submit("print('alive')")
	require.NoError(t, err)
	assert.Contains(t, out, "alive")

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())

	_, err = s.Submit("1")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSession_StopWithoutStart(t *testing.T) {
	s := NewSession(Options{})
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestSession_EmptyCommand(t *testing.T) {
	s := startSession(t, Options{Timeout: 5 * time.Second})
	for _, cmd := range []string{"", "   ", "\n\t\n"} {
		_, err := s.Submit(cmd)
		assert.ErrorIs(t, err, ErrEmptyCommand)
	}
}

func TestSession_Unavailable(t *testing.T) {
	probeErr := errors.New("feature flag off")
	s := NewSession(Options{Probes: []Probe{
		func(context.Context) error { return probeErr },
	}})

	require.NoError(t, s.Start(context.Background()), "a failed probe is not an error")
	assert.Equal(t, StateUnavailable, s.State())
	assert.ErrorIs(t, s.UnavailableReason(), probeErr)

	_, err := s.Submit("1")
	assert.ErrorIs(t, err, ErrNotRunning)

	reached := false
	t.Run("dependent case", func(t *testing.T) {
		s.Case(t)
		reached = true
	})
	assert.False(t, reached, "dependent case should have been skipped")

	require.NoError(t, s.Stop())
}

func TestSession_TimeoutOnEvaluationError(t *testing.T) {
	s := startSession(t, Options{Timeout: 300 * time.Millisecond})

	cmd := "print('first')\nthrow new Error('kaboom')\nprint('never')"
	_, err := s.Submit(cmd)
	require.Error(t, err)

	var te *TimeoutError
	require.True(t, errors.As(err, &te), "expected *TimeoutError, got %T: %v", err, err)
	assert.Equal(t, cmd, te.Command)
	assert.Equal(t, 300*time.Millisecond, te.Timeout)
	assert.Contains(t, te.Stdout, "first")
	assert.NotContains(t, te.Stdout, "never")
	assert.Contains(t, te.Stderr, "kaboom")

	// the session survives a failed case
	s.Reset()
	out, err := s.Submit("print('recovered')")
	require.NoError(t, err)
	assert.Contains(t, out, "recovered")
}

func TestSession_FailFast(t *testing.T) {
	s := startSession(t, Options{Timeout: 30 * time.Second, FailFast: true})

	start := time.Now()
	_, err := s.Submit("undefinedFunction()")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	var ee *EvalError
	require.True(t, errors.As(err, &ee), "expected *EvalError, got %T: %v", err, err)
	assert.Equal(t, "undefinedFunction()", ee.Command)
	assert.Contains(t, ee.Err.Error(), "undefinedFunction")
	assert.Contains(t, ee.Stderr, "undefinedFunction")

	s.Reset()
	out, err := s.Submit("print('still here')")
	require.NoError(t, err)
	assert.Contains(t, out, "still here")
}

func TestSession_LeftoverSignalDrainedByReset(t *testing.T) {
	s := startSession(t, Options{Timeout: 10 * time.Second})

	// a stray release, as left by a batch that completed after timing out
	s.signal.Release()
	s.Reset()
	assert.Zero(t, s.signal.Available())

	out, err := s.Submit("for (var i = 0; i < 200000; i++) {}\nprint('finished ' + i)")
	require.NoError(t, err)
	assert.Contains(t, out, "finished 200000")
}

func TestSession_SubmitContextCancelled(t *testing.T) {
	s := startSession(t, Options{Timeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SubmitContext(ctx, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var te *TimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestSession_REPLExit(t *testing.T) {
	exitErr := errors.New("connection refused")
	s := startSession(t, Options{
		Timeout: 10 * time.Second,
		REPL: func(ctx context.Context, cfg repl.Config) error {
			return exitErr
		},
	})

	start := time.Now()
	_, err := s.Submit("1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, ErrWorkerExited)
	assert.ErrorIs(t, err, exitErr)
}

func TestSession_StopInterruptsRunawayEvaluation(t *testing.T) {
	s := NewSession(Options{Timeout: 100 * time.Millisecond, StopTimeout: 5 * time.Second})
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Submit("while (true) {}")
	var te *TimeoutError
	require.True(t, errors.As(err, &te))

	start := time.Now()
	require.NoError(t, s.Stop())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSession_CustomSentinel(t *testing.T) {
	s := startSession(t, Options{Timeout: 5 * time.Second, SignalName: "done"})
	out, err := s.Submit("print('custom')")
	require.NoError(t, err)
	assert.Contains(t, out, "custom")
}

func TestSession_OutputIsCumulative(t *testing.T) {
	s := startSession(t, Options{Timeout: 5 * time.Second})

	first := s.Exec(t, "print('one')")
	mark := s.StdoutBuffer().Len()
	second := s.Exec(t, "print('two')")

	assert.True(t, strings.HasPrefix(second, first))
	assert.Equal(t, "two\n", s.StdoutBuffer().Since(mark))
	assert.Equal(t, second, s.Stdout())
}

func TestSession_AssertContains(t *testing.T) {
	s := startSession(t, Options{Timeout: 5 * time.Second})
	s.Exec(t, "console.error('warned')")

	err := s.AssertContains("missing", s.Stdout())
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Stderr, "warned")
	assert.NoError(t, s.AssertContains("warned", s.Stderr()))
}

func TestSession_CaseDiscardsLateRelease(t *testing.T) {
	s := startSession(t, Options{Timeout: 300 * time.Millisecond})

	_, err := s.Submit("var t0 = Date.now()\nwhile (Date.now() - t0 < 1500) {}")
	var te *TimeoutError
	require.True(t, errors.As(err, &te), "expected *TimeoutError, got %T: %v", err, err)
	s.Reset()

	// the abandoned batch finishes and releases after the reset
	require.Eventually(t, func() bool { return s.signal.Available() == 1 },
		5*time.Second, 10*time.Millisecond)

	t.Run("next case", func(t *testing.T) {
		s.Case(t)
		assert.Zero(t, s.signal.Available())

		out, err := s.Submit("var t1 = Date.now()\nwhile (Date.now() - t1 < 20) {}\nprint('next-case-done')")
		require.NoError(t, err)
		assert.Contains(t, out, "next-case-done")
	})
}

func TestSession_IncompleteTrailingStatementFails(t *testing.T) {
	for _, cmd := range []string{"var x =", "print('a') +"} {
		t.Run(cmd, func(t *testing.T) {
			s := startSession(t, Options{Timeout: 10 * time.Second, FailFast: true})

			_, err := s.Submit(cmd)
			var ee *EvalError
			require.True(t, errors.As(err, &ee), "expected *EvalError, got %T: %v", err, err)
			assert.Equal(t, cmd, ee.Command)
			assert.NotContains(t, ee.Stdout, "a")
			assert.Contains(t, ee.Stderr, "Error: ")
		})
	}
}

func TestSession_IncompleteTrailingStatementTimesOut(t *testing.T) {
	s := startSession(t, Options{Timeout: 200 * time.Millisecond})

	_, err := s.Submit("var x =")
	var te *TimeoutError
	require.True(t, errors.As(err, &te), "expected *TimeoutError, got %T: %v", err, err)
	assert.Contains(t, te.Stderr, "Error: ")
}
