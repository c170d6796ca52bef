//go:build unix

// Package termtest runs a program on a pseudo-terminal and waits for its
// output, for end-to-end tests of interactive commands.
package termtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/joeycumines/repl-harness/internal/harness"
)

// DefaultKeyDelay is the pause between typed runes. Line editors treat a
// read containing several runes plus Enter as pasted text, so input is typed
// one rune at a time.
const DefaultKeyDelay = 5 * time.Millisecond

// ErrClosed is returned when interacting with a closed Console.
var ErrClosed = errors.New("console closed")

// Console is a process attached to the slave side of a PTY.
type Console struct {
	cmd *exec.Cmd
	ptm *os.File

	mu     sync.Mutex
	output strings.Builder
	// wake is closed and replaced whenever output arrives or reading stops.
	wake    chan struct{}
	readErr error
	eof     bool

	waitErr error
	exited  chan struct{}

	closeOnce sync.Once
	KeyDelay  time.Duration
}

// Options configures Start.
type Options struct {
	Args []string
	Env  []string
	Dir  string
	Rows uint16
	Cols uint16
}

// Start runs name on a new PTY sized 24x80 unless opts says otherwise.
func Start(name string, opts Options) (*Console, error) {
	cmd := exec.Command(name, opts.Args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, opts.Env...)
	cmd.Dir = opts.Dir

	size := &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols}
	if size.Rows == 0 {
		size.Rows = 24
	}
	if size.Cols == 0 {
		size.Cols = 80
	}
	ptm, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s on pty: %w", name, err)
	}

	c := &Console{
		cmd:      cmd,
		ptm:      ptm,
		wake:     make(chan struct{}),
		exited:   make(chan struct{}),
		KeyDelay: DefaultKeyDelay,
	}
	go c.read()
	go c.wait()
	return c, nil
}

func (c *Console) read() {
	buf := make([]byte, 4096)
	for {
		n, err := c.ptm.Read(buf)
		c.mu.Lock()
		if n > 0 {
			c.output.Write(buf[:n])
		}
		if err != nil {
			c.eof = true
			// Linux reports the slave side closing as EIO
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
				c.readErr = err
			}
		}
		close(c.wake)
		c.wake = make(chan struct{})
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *Console) wait() {
	c.waitErr = c.cmd.Wait()
	close(c.exited)
}

// Type writes input one rune at a time, KeyDelay apart.
func (c *Console) Type(input string) error {
	for _, r := range input {
		if _, err := c.ptm.WriteString(string(r)); err != nil {
			return fmt.Errorf("failed to write input: %w", err)
		}
		if c.KeyDelay > 0 {
			time.Sleep(c.KeyDelay)
		}
	}
	return nil
}

// SendLine types line, waits for it to be echoed, then presses Enter.
// Line editors treat input arriving in the same read as the typed text as a
// paste, in which Enter inserts a newline rather than submitting.
func (c *Console) SendLine(ctx context.Context, line string) error {
	mark := c.Len()
	if err := c.Type(line); err != nil {
		return err
	}
	if err := c.ExpectSince(ctx, line, mark); err != nil {
		return fmt.Errorf("echo of typed line: %w", err)
	}
	return c.Type("\r")
}

// Len is the length of the raw output so far, for use with ExpectSince.
func (c *Console) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.Len()
}

// Output returns everything the process has written, normalized.
func (c *Console) Output() string {
	return harness.Normalize(c.RawOutput())
}

// RawOutput returns everything the process has written, as written.
func (c *Console) RawOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.String()
}

// Expect waits until the normalized output contains text.
func (c *Console) Expect(ctx context.Context, text string) error {
	return c.ExpectSince(ctx, text, 0)
}

// ExpectSince waits until the normalized output written after raw offset
// contains text. It returns early if ctx is done or the PTY is drained.
func (c *Console) ExpectSince(ctx context.Context, text string, offset int) error {
	for {
		c.mu.Lock()
		raw := c.output.String()
		wake, eof, readErr := c.wake, c.eof, c.readErr
		c.mu.Unlock()

		if offset > len(raw) {
			offset = len(raw)
		}
		out := harness.Normalize(raw[offset:])
		if strings.Contains(out, text) {
			return nil
		}
		if eof {
			if readErr != nil {
				return fmt.Errorf("output ended without %q: %w", text, readErr)
			}
			return fmt.Errorf("output ended without %q; output:\n%s", text, out)
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %q: %w; output:\n%s", text, context.Cause(ctx), out)
		}
	}
}

// Wait waits for the process to exit, returning its exit code.
func (c *Console) Wait(ctx context.Context) (int, error) {
	select {
	case <-c.exited:
	case <-ctx.Done():
		return -1, fmt.Errorf("waiting for exit: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(c.waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if c.waitErr != nil {
		return -1, c.waitErr
	}
	return 0, nil
}

// Close kills the process if it is still running and releases the PTY.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		select {
		case <-c.exited:
		default:
			if kerr := c.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = fmt.Errorf("failed to kill process: %w", kerr)
			}
			<-c.exited
		}
		if cerr := c.ptm.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close pty: %w", cerr))
		}
	})
	return err
}
