package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertContains returns nil if actual contains expected, and an
// *AssertionError carrying the full actual output and stderr otherwise.
func AssertContains(expected, actual, stderr string) error {
	if strings.Contains(actual, expected) {
		return nil
	}
	return &AssertionError{Expected: expected, Actual: actual, Stderr: stderr}
}

// RequireContains fails tb immediately unless actual contains expected.
func RequireContains(tb testing.TB, expected, actual, stderr string) {
	tb.Helper()
	require.NoError(tb, AssertContains(expected, actual, stderr))
}
