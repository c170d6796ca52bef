package harness

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotRunning is returned by Submit when the session is not running.
	ErrNotRunning = errors.New("session not running")

	// ErrEmptyCommand is returned by Submit for a blank command batch.
	ErrEmptyCommand = errors.New("empty command")

	// ErrWorkerExited is returned by Submit when the REPL stopped while a batch
	// was in flight.
	ErrWorkerExited = errors.New("repl exited")
)

// TimeoutError reports a batch whose completion signal was not released in
// time. Stdout and Stderr are normalized snapshots taken when the wait ended.
type TimeoutError struct {
	Command string
	Stdout  string
	Stderr  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "timed out after %v waiting for command to complete", e.Timeout)
	writeDiagnostic(&b, "command", e.Command)
	writeDiagnostic(&b, "stdout", e.Stdout)
	writeDiagnostic(&b, "stderr", e.Stderr)
	return b.String()
}

// EvalError reports a batch aborted by an evaluation error, when the session
// is configured to fail fast rather than wait for the timeout.
type EvalError struct {
	Command string
	Err     error
	Stdout  string
	Stderr  string
}

func (e *EvalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command failed: %v", e.Err)
	writeDiagnostic(&b, "command", e.Command)
	writeDiagnostic(&b, "stdout", e.Stdout)
	writeDiagnostic(&b, "stderr", e.Stderr)
	return b.String()
}

func (e *EvalError) Unwrap() error { return e.Err }

// AssertionError reports that an expected fragment was missing from output.
type AssertionError struct {
	Expected string
	Actual   string
	Stderr   string
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "output does not contain %q", e.Expected)
	writeDiagnostic(&b, "stdout", e.Actual)
	writeDiagnostic(&b, "stderr", e.Stderr)
	return b.String()
}

// writeDiagnostic appends an indented, labelled section to b.
func writeDiagnostic(b *strings.Builder, label, content string) {
	b.WriteString("\n")
	b.WriteString(label)
	b.WriteString(":")
	content = strings.TrimRight(content, "\n")
	if content == "" {
		b.WriteString(" <empty>")
		return
	}
	for line := range strings.SplitSeq(content, "\n") {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
}
