package harness

import (
	"fmt"
	"io"
	"sync"
)

// ErrBridgeClosed is returned by writes to a closed Bridge.
var ErrBridgeClosed = fmt.Errorf("bridge closed: %w", io.ErrClosedPipe)

// Bridge is an in-process, unbounded pipe between the driver and the REPL.
//
// Each Write is enqueued as one block, so a batch written in a single call is
// delivered to the reader as a single unit via ReadBlock. Writes never block.
// Read implements io.Reader over the same queue for consumers that do not care
// about block boundaries.
type Bridge struct {
	mu     sync.Mutex
	cond   *sync.Cond
	blocks [][]byte
	// partial holds the unread tail of a block consumed by Read.
	partial []byte
	closed  bool
}

// NewBridge returns an open, empty Bridge.
func NewBridge() *Bridge {
	b := &Bridge{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write enqueues a copy of p as one block. Empty writes are ignored.
func (b *Bridge) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBridgeClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	block := make([]byte, len(p))
	copy(block, p)
	b.blocks = append(b.blocks, block)
	b.cond.Signal()
	return len(p), nil
}

// WriteString is Write for strings.
func (b *Bridge) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// ReadBlock blocks until a whole block is available and returns it. Once the
// bridge is closed and drained it returns io.EOF.
func (b *Bridge) ReadBlock() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if len(b.partial) != 0 {
			block := b.partial
			b.partial = nil
			return block, nil
		}
		if len(b.blocks) != 0 {
			block := b.blocks[0]
			b.blocks[0] = nil
			b.blocks = b.blocks[1:]
			return block, nil
		}
		if b.closed {
			return nil, io.EOF
		}
		b.cond.Wait()
	}
}

// Read implements io.Reader.
func (b *Bridge) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.partial) == 0 {
		if len(b.blocks) != 0 {
			b.partial = b.blocks[0]
			b.blocks[0] = nil
			b.blocks = b.blocks[1:]
			continue
		}
		if b.closed {
			return 0, io.EOF
		}
		b.cond.Wait()
	}
	n := copy(p, b.partial)
	b.partial = b.partial[n:]
	return n, nil
}

// Pending reports the number of unread blocks, including a partially read one.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.blocks)
	if len(b.partial) != 0 {
		n++
	}
	return n
}

// Close marks the bridge closed and wakes any blocked reader. Buffered blocks
// remain readable. Close is idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.cond.Broadcast()
	}
	return nil
}
