// Package repl implements the JavaScript REPL driven by the harness: a goja
// runtime on a dedicated event loop that reads input units from a stream,
// evaluates them in order, and echoes results to its output streams.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
)

// DefaultSignalName is the global the completion handle is bound to.
const DefaultSignalName = "semaphore"

// scriptName is the source name reported in evaluation errors.
const scriptName = "<repl>"

// Releaser is the completion handle exposed to scripts as <name>.release().
type Releaser interface {
	Release()
}

// BlockReader is implemented by inputs that preserve write boundaries. Each
// block is evaluated as one input unit.
type BlockReader interface {
	ReadBlock() ([]byte, error)
}

// Func is the signature of Run, so that callers can substitute another REPL.
type Func func(ctx context.Context, cfg Config) error

// Config configures one REPL instance.
type Config struct {
	// Target is the connection target, exposed to scripts as `target`.
	Target string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Signal is bound as SignalName.release(). Optional.
	Signal     Releaser
	SignalName string

	// Sentinel is the statement a driver appends as the last line of every
	// unit. When set, it always runs as a separate input, so it never
	// completes a statement left unfinished by the lines before it.
	Sentinel string

	// OnError, if set, is called on the loop goroutine for every evaluation
	// error, after it has been written to Stderr.
	OnError func(err error)

	// Color enables ANSI styling of echoed values and errors.
	Color bool

	Logger *slog.Logger
}

var _ Func = Run

// Run evaluates input from cfg.Stdin until it is exhausted or ctx is done. An
// evaluation error is written to Stderr and abandons the rest of its input
// unit; it does not stop the REPL.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Stdin == nil {
		return errors.New("repl: no input")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}
	if cfg.SignalName == "" {
		cfg.SignalName = DefaultSignalName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	rt, err := NewRuntime(ctx)
	if err != nil {
		return fmt.Errorf("repl: %w", err)
	}
	defer rt.Close()

	r := &session{cfg: cfg, log: cfg.Logger}
	if err := rt.RunOnLoopSync(r.install); err != nil {
		return fmt.Errorf("repl: install globals: %w", err)
	}
	r.log.Debug("repl started", "target", cfg.Target, "signal", cfg.SignalName)

	units := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readUnits(ctx, cfg.Stdin, units)
		close(units)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case unit, ok := <-units:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("repl: read input: %w", err)
				}
				r.log.Debug("repl input closed")
				return nil
			}
			err := rt.RunOnLoopSync(func(vm *goja.Runtime) error {
				r.evalUnit(vm, unit)
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("repl: %w", err)
			}
		}
	}
}

// readUnits frames input into units and sends them until EOF.
func readUnits(ctx context.Context, in io.Reader, units chan<- string) error {
	send := func(unit string) bool {
		if strings.TrimSpace(unit) == "" {
			return true
		}
		select {
		case units <- unit:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if br, ok := in.(BlockReader); ok {
		for {
			block, err := br.ReadBlock()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if !send(string(block)) {
				return nil
			}
		}
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !send(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

type session struct {
	cfg     Config
	log     *slog.Logger
	compute computeCache
}

// install binds the REPL globals. It runs on the loop goroutine.
func (r *session) install(vm *goja.Runtime) error {
	if err := vm.Set("print", r.printer(r.cfg.Stdout)); err != nil {
		return fmt.Errorf("failed to set print: %w", err)
	}

	console := vm.NewObject()
	for name, w := range map[string]io.Writer{
		"log":   r.cfg.Stdout,
		"info":  r.cfg.Stdout,
		"warn":  r.cfg.Stderr,
		"error": r.cfg.Stderr,
	} {
		if err := console.Set(name, r.printer(w)); err != nil {
			return fmt.Errorf("failed to set console.%s: %w", name, err)
		}
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("failed to set console: %w", err)
	}

	if err := vm.Set("target", r.cfg.Target); err != nil {
		return fmt.Errorf("failed to set target: %w", err)
	}

	if err := vm.Set("compute", r.computeFunc(vm)); err != nil {
		return fmt.Errorf("failed to set compute: %w", err)
	}

	if r.cfg.Signal != nil {
		handle := vm.NewObject()
		if err := handle.Set("release", func(goja.FunctionCall) goja.Value {
			r.cfg.Signal.Release()
			return goja.Undefined()
		}); err != nil {
			return fmt.Errorf("failed to set %s.release: %w", r.cfg.SignalName, err)
		}
		if err := vm.Set(r.cfg.SignalName, handle); err != nil {
			return fmt.Errorf("failed to set %s: %w", r.cfg.SignalName, err)
		}
	}
	return nil
}

func (r *session) printer(w io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		fmt.Fprintln(w, strings.Join(args, " "))
		return goja.Undefined()
	}
}

// evalUnit evaluates each complete input of unit in order, stopping at the
// first error.
func (r *session) evalUnit(vm *goja.Runtime, unit string) {
	for chunk, err := range inputs(unit, r.cfg.Sentinel) {
		if err != nil {
			r.fail(err)
			return
		}
		val, err := vm.RunProgram(chunk)
		if err != nil {
			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) {
				r.log.Debug("evaluation interrupted", "reason", interrupted.Value())
				return
			}
			r.fail(err)
			return
		}
		if s, ok := formatValue(val, r.cfg.Color); ok {
			fmt.Fprintln(r.cfg.Stdout, s)
		}
	}
}

func (r *session) fail(err error) {
	r.log.Debug("evaluation failed", "error", err)
	fmt.Fprintln(r.cfg.Stderr, paint(errorStyle, "Error: "+err.Error(), r.cfg.Color))
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
}
