// Package logging provides the application's slog setup: an in-memory ring of
// recent entries, optionally teed to a text or JSON log file.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogEntry is a single recorded log entry.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs"`
}

func (e LogEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Time.Format(time.TimeOnly), e.Level, e.Message)
	for k, v := range e.Attrs {
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	return b.String()
}

// ring is the shared storage behind a RingHandler and its derivatives.
type ring struct {
	mu      sync.RWMutex
	entries []LogEntry
	maxSize int
}

// RingHandler is an slog.Handler keeping the most recent entries in memory.
type RingHandler struct {
	ring   *ring
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewRingHandler returns a handler keeping up to maxEntries entries at or
// above level.
func NewRingHandler(maxEntries int, level slog.Leveler) *RingHandler {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &RingHandler{
		ring:  &ring{entries: make([]LogEntry, 0, maxEntries), maxSize: maxEntries},
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *RingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *RingHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]string, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[h.prefix+a.Key] = a.Value.String()
		return true
	})

	entry := LogEntry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	}

	r := h.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.maxSize {
		r.entries = r.entries[1:]
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

// WithGroup implements slog.Handler. Group names prefix attribute keys.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// Entries returns a copy of all retained entries, oldest first.
func (h *RingHandler) Entries() []LogEntry {
	h.ring.mu.RLock()
	defer h.ring.mu.RUnlock()
	out := make([]LogEntry, len(h.ring.entries))
	copy(out, h.ring.entries)
	return out
}

// Recent returns up to count of the newest entries, oldest first.
func (h *RingHandler) Recent(count int) []LogEntry {
	h.ring.mu.RLock()
	defer h.ring.mu.RUnlock()
	n := len(h.ring.entries)
	if count <= 0 || count > n {
		count = n
	}
	out := make([]LogEntry, count)
	copy(out, h.ring.entries[n-count:])
	return out
}

// Search returns entries whose message or attributes contain query,
// case-insensitively.
func (h *RingHandler) Search(query string) []LogEntry {
	h.ring.mu.RLock()
	defer h.ring.mu.RUnlock()

	query = strings.ToLower(query)
	var matches []LogEntry
	for _, entry := range h.ring.entries {
		if strings.Contains(strings.ToLower(entry.Message), query) {
			matches = append(matches, entry)
			continue
		}
		for key, value := range entry.Attrs {
			if strings.Contains(strings.ToLower(key), query) ||
				strings.Contains(strings.ToLower(value), query) {
				matches = append(matches, entry)
				break
			}
		}
	}
	return matches
}

// Clear removes all retained entries.
func (h *RingHandler) Clear() {
	h.ring.mu.Lock()
	defer h.ring.mu.Unlock()
	h.ring.entries = h.ring.entries[:0]
}

// teeHandler forwards records to every handler that accepts them.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Options configures New.
type Options struct {
	// Level is the minimum level recorded. Defaults to info.
	Level slog.Level
	// BufferSize is the ring capacity. Defaults to 1000.
	BufferSize int
	// File, if set, receives every record in Format.
	File string
	// Format is "text" (default) or "json".
	Format string
}

// Logger bundles the slog.Logger with its ring buffer.
type Logger struct {
	*slog.Logger
	Ring   *RingHandler
	closer io.Closer
}

// New builds a Logger from opts, opening the log file for append if set.
func New(opts Options) (*Logger, error) {
	ringHandler := NewRingHandler(opts.BufferSize, opts.Level)
	handlers := teeHandler{ringHandler}

	var closer io.Closer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		h, err := NewWriterHandler(f, opts.Format, opts.Level)
		if err != nil {
			f.Close()
			return nil, err
		}
		handlers = append(handlers, h)
		closer = f
	}

	return &Logger{Logger: slog.New(handlers), Ring: ringHandler, closer: closer}, nil
}

// NewWriterHandler returns a text or JSON handler writing to w.
func NewWriterHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	hopts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, hopts), nil
	case "json":
		return slog.NewJSONHandler(w, hopts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLevel parses debug, info, warn or error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
