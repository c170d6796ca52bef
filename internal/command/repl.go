package command

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"unicode/utf8"

	"github.com/joeycumines/go-prompt"
	istrings "github.com/joeycumines/go-prompt/strings"
	"github.com/joeycumines/repl-harness/internal/config"
	"github.com/joeycumines/repl-harness/internal/harness"
	"golang.org/x/term"
)

// ReplCommand is an interactive front-end over a session: each entered line
// is submitted as one command batch. When stdin is not a terminal, lines are
// read plainly, without an editor.
type ReplCommand struct {
	*BaseCommand
	config      *config.Config
	flags       sessionFlags
	historyFile string

	stdin io.Reader
	// interactive reports whether to use the line editor.
	interactive func() bool
}

// NewReplCommand creates a new repl command.
func NewReplCommand(cfg *config.Config) *ReplCommand {
	return &ReplCommand{
		BaseCommand: NewBaseCommand(
			"repl",
			"Start an interactive REPL session",
			"repl [options]",
		),
		config: cfg,
		stdin:  os.Stdin,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		},
	}
}

// SetupFlags configures the flags for the repl command.
func (c *ReplCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags.setup(fs)
	fs.StringVar(&c.historyFile, "history-file", "", "Persist input history to this file (overrides config history-file)")
}

// Execute runs the REPL until input ends or .exit is entered.
func (c *ReplCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return errors.New("unexpected arguments")
	}
	schema := config.DefaultSchema()

	log, err := c.flags.logger(c.config, "repl")
	if err != nil {
		return err
	}
	defer log.Close()

	opts, err := c.flags.options(c.config, "repl")
	if err != nil {
		return err
	}
	opts.Logger = log.Logger
	// waiting out the timeout after every typo is no use interactively
	opts.FailFast = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := harness.NewSession(opts)
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.Stop(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: %v\n", err)
		}
	}()
	if s.State() == harness.StateUnavailable {
		_, _ = fmt.Fprintf(stderr, "REPL unavailable: %v\n", s.UnavailableReason())
		return fmt.Errorf("session unavailable: %w", s.UnavailableReason())
	}

	sh := &shell{
		ctx:     ctx,
		session: s,
		ring:    log.Ring,
		stdout:  stdout,
		stderr:  stderr,
	}

	historyFile := c.historyFile
	if historyFile == "" {
		historyFile = schema.Resolve(c.config, "repl", config.KeyHistoryFile)
	}
	historySize, err := schema.ResolveInt(c.config, "repl", config.KeyHistorySize)
	if err != nil {
		return err
	}
	history := loadHistory(historyFile)

	if c.interactive != nil && c.interactive() {
		c.runPrompt(sh, schema.Resolve(c.config, "repl", config.KeyPrompt), history, opts.SignalName)
	} else if err := c.runLines(sh); err != nil {
		return err
	}

	if err := saveHistory(historyFile, append(history, sh.history...), historySize); err != nil {
		log.Warn("failed to save history", "file", historyFile, "error", err)
	}
	return nil
}

func (c *ReplCommand) runLines(sh *shell) error {
	scanner := bufio.NewScanner(c.stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !sh.execute(scanner.Text()) {
			return nil
		}
		if sh.ctx.Err() != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func (c *ReplCommand) runPrompt(sh *shell, prefix string, history []string, signalName string) {
	_, _ = fmt.Fprintln(sh.stdout, "Type .help for help, .exit to quit")

	p := prompt.New(
		func(line string) { sh.execute(line) },
		prompt.WithTitle("replharness"),
		prompt.WithPrefix(prefix),
		prompt.WithPrefixTextColor(prompt.Cyan),
		prompt.WithHistory(history),
		prompt.WithCompleter(newCompleter(signalName)),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return breakline && sh.exited
		}),
	)
	p.Run()
}

// newCompleter suggests meta commands and REPL globals matching the word
// before the cursor.
func newCompleter(signalName string) func(prompt.Document) ([]prompt.Suggest, istrings.RuneNumber, istrings.RuneNumber) {
	candidates := []prompt.Suggest{
		{Text: "print", Description: "Print arguments to stdout"},
		{Text: "console", Description: "log, info, warn, error"},
		{Text: "target", Description: "Connection target"},
		{Text: "compute", Description: "Evaluate an expr expression"},
		{Text: signalName, Description: "Completion signal"},
	}
	for _, m := range metaCommands {
		candidates = append(candidates, prompt.Suggest{Text: m.name, Description: m.description})
	}

	return func(d prompt.Document) ([]prompt.Suggest, istrings.RuneNumber, istrings.RuneNumber) {
		before := d.TextBeforeCursor()
		word := d.GetWordBeforeCursor()
		end := istrings.RuneNumber(utf8.RuneCountInString(before))
		start := end - istrings.RuneNumber(utf8.RuneCountInString(word))
		if word == "" {
			return nil, start, end
		}
		var out []prompt.Suggest
		for _, s := range candidates {
			if strings.HasPrefix(s.Text, word) {
				out = append(out, s)
			}
		}
		return out, start, end
	}
}
