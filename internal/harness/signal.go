package harness

import (
	"context"
	"sync"
	"time"
)

// Signal is a counting completion signal. The REPL releases it when it
// evaluates the sentinel statement and the driver acquires it to learn that
// every statement before the sentinel has run.
//
// Releases are never lost: a release that happens before the driver starts
// waiting is counted and consumed by the next Acquire. The zero value is ready
// to use.
type Signal struct {
	mu    sync.Mutex
	count int
	// wake is closed, then replaced, on every Release.
	wake chan struct{}
}

// NewSignal returns a Signal with a count of zero.
func NewSignal() *Signal {
	return &Signal{}
}

// Release increments the count and wakes waiters.
func (s *Signal) Release() {
	s.mu.Lock()
	s.count++
	if s.wake != nil {
		close(s.wake)
		s.wake = nil
	}
	s.mu.Unlock()
}

// Acquire consumes one unit, blocking until one is available or ctx is done,
// in which case ctx.Err() is returned and the count is left untouched. A unit
// released by the time ctx is observed done is still consumed.
func (s *Signal) Acquire(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.count > 0 {
			s.count--
			s.mu.Unlock()
			return nil
		}
		if s.wake == nil {
			s.wake = make(chan struct{})
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.count > 0 {
				s.count--
				return nil
			}
			return ctx.Err()
		}
	}
}

// AcquireTimeout is Acquire bounded by d. It reports whether a unit was
// consumed.
func (s *Signal) AcquireTimeout(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Acquire(ctx) == nil
}

// Drain resets the count to zero, returning the number of discarded units.
func (s *Signal) Drain() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.count
	s.count = 0
	return n
}

// Available returns the current count.
func (s *Signal) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
