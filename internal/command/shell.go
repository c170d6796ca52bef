package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joeycumines/repl-harness/internal/harness"
	"github.com/joeycumines/repl-harness/internal/logging"
)

// defaultLogCount is how many entries .logs prints without a query.
const defaultLogCount = 20

// shell executes interactive input lines against a session. Lines starting
// with a dot are meta commands; everything else is one command batch.
type shell struct {
	ctx     context.Context
	session *harness.Session
	ring    *logging.RingHandler
	stdout  io.Writer
	stderr  io.Writer

	history []string
	exited  bool
}

type metaCommand struct {
	name        string
	args        string
	description string
}

var metaCommands = []metaCommand{
	{name: ".help", description: "Show this help"},
	{name: ".logs", args: "[query|count]", description: "Show recent log entries, optionally filtered"},
	{name: ".exit", description: "Leave the REPL"},
}

// execute runs one input line, reporting whether the shell should keep
// reading.
func (sh *shell) execute(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	sh.history = append(sh.history, trimmed)

	if strings.HasPrefix(trimmed, ".") {
		name, args, _ := strings.Cut(trimmed, " ")
		switch name {
		case ".exit", ".quit":
			sh.exited = true
			return false
		case ".help":
			sh.printHelp()
			return true
		case ".logs":
			sh.printLogs(strings.TrimSpace(args))
			return true
		}
	}

	sh.submit(line)
	return true
}

// submit sends line as one batch and echoes exactly the output it produced.
func (sh *shell) submit(line string) {
	// a batch abandoned on timeout may have finished since
	sh.session.Reset()
	outMark, errMark := sh.session.StdoutBuffer().Len(), sh.session.StderrBuffer().Len()
	_, err := sh.session.SubmitContext(sh.ctx, line)
	_, _ = io.WriteString(sh.stdout, sh.session.StdoutBuffer().Since(outMark))
	_, _ = io.WriteString(sh.stderr, sh.session.StderrBuffer().Since(errMark))

	var (
		evalErr    *harness.EvalError
		timeoutErr *harness.TimeoutError
	)
	switch {
	case err == nil:
	case errors.As(err, &evalErr):
		// already echoed from stderr
	case errors.As(err, &timeoutErr):
		_, _ = fmt.Fprintf(sh.stderr, "timed out after %v\n", timeoutErr.Timeout)
	default:
		_, _ = fmt.Fprintf(sh.stderr, "%v\n", err)
	}
}

func (sh *shell) printHelp() {
	_, _ = fmt.Fprintln(sh.stdout, "Enter JavaScript to evaluate it. Globals: print, console, target, compute.")
	for _, m := range metaCommands {
		usage := m.name
		if m.args != "" {
			usage += " " + m.args
		}
		_, _ = fmt.Fprintf(sh.stdout, "  %-24s %s\n", usage, m.description)
	}
}

func (sh *shell) printLogs(arg string) {
	var entries []logging.LogEntry
	if n, err := strconv.Atoi(arg); err == nil {
		entries = sh.ring.Recent(n)
	} else if arg != "" {
		entries = sh.ring.Search(arg)
	} else {
		entries = sh.ring.Recent(defaultLogCount)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(sh.stdout, "no log entries")
		return
	}
	for _, e := range entries {
		_, _ = fmt.Fprintln(sh.stdout, e.String())
	}
}
