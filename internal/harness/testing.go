package harness

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// RunSuite starts s, runs the package's tests and stops s, returning the exit
// code for os.Exit. It is meant to be called from TestMain, so that one REPL
// serves every case in the package.
func RunSuite(m *testing.M, s *Session) int {
	if err := s.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "harness: %v\n", err)
		return 1
	}
	defer func() {
		if err := s.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "harness: %v\n", err)
		}
	}()
	return m.Run()
}

// Case prepares s for one test case. It skips tb when the session is
// unavailable and fails it when the session is not running. Otherwise it
// resets s, discarding releases left over from batches that completed after
// an earlier case gave up on them, and registers Reset again to run once the
// case finishes, whatever its outcome.
func (s *Session) Case(tb testing.TB) {
	tb.Helper()
	switch state := s.State(); state {
	case StateRunning:
	case StateUnavailable:
		tb.Skipf("session unavailable: %v", s.UnavailableReason())
	default:
		tb.Fatalf("session is %s", state)
	}
	s.Reset()
	tb.Cleanup(s.Reset)
}

// Exec submits command and fails tb on any error, returning the normalized
// output.
func (s *Session) Exec(tb testing.TB, command string) string {
	tb.Helper()
	out, err := s.Submit(command)
	require.NoError(tb, err)
	return out
}

// RequireContains fails tb unless actual contains expected, reporting the
// session's stderr alongside.
func (s *Session) RequireContains(tb testing.TB, expected, actual string) {
	tb.Helper()
	require.NoError(tb, s.AssertContains(expected, actual))
}
