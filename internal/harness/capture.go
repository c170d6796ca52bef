package harness

import (
	"strings"
	"sync"
)

// CaptureBuffer accumulates everything the REPL writes to one of its output
// streams. It is append-only for the lifetime of a session and safe for
// concurrent use by the REPL (writer) and the driver (reader).
type CaptureBuffer struct {
	mu  sync.RWMutex
	buf strings.Builder
}

// Write implements io.Writer.
func (c *CaptureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// String returns the raw accumulated content.
func (c *CaptureBuffer) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buf.String()
}

// Len returns the number of bytes captured so far.
func (c *CaptureBuffer) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buf.Len()
}

// Since returns the raw content written after offset, which is typically a
// value previously obtained from Len. Out of range offsets are clamped.
func (c *CaptureBuffer) Since(offset int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.buf.String()
	if offset < 0 {
		offset = 0
	}
	if offset > len(s) {
		return ""
	}
	return s[offset:]
}

// Normalized returns the accumulated content with terminal control sequences
// removed.
func (c *CaptureBuffer) Normalized() string {
	return Normalize(c.String())
}
