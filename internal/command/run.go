package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"charm.land/lipgloss/v2"
	"github.com/joeycumines/repl-harness/internal/config"
	"github.com/joeycumines/repl-harness/internal/harness"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// RunCommand submits the batches of a script file to a fresh session, one
// at a time, checking any expected output.
type RunCommand struct {
	*BaseCommand
	config    *config.Config
	flags     sessionFlags
	separator string
	quiet     bool

	// stdin is read when the script path is "-".
	stdin io.Reader
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Run a script of command batches through the REPL",
			"run [options] <script|->",
		),
		config: cfg,
		stdin:  os.Stdin,
	}
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.flags.setup(fs)
	fs.StringVar(&c.separator, "separator", "", "Line separating batches (overrides config separator)")
	fs.BoolVar(&c.quiet, "quiet", false, "Print only the result of each batch, not its output")
}

// Execute runs the script.
func (c *RunCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintf(stderr, "Usage: %s\n", c.Usage())
		return errors.New("expected exactly one script")
	}

	src, err := c.readScript(args[0])
	if err != nil {
		return err
	}

	separator := c.separator
	if separator == "" {
		separator = config.DefaultSchema().Resolve(c.config, "run", config.KeySeparator)
	}
	batches := parseScript(src, separator)
	if len(batches) == 0 {
		_, _ = fmt.Fprintln(stderr, "No command batches in script")
		return errors.New("empty script")
	}

	log, err := c.flags.logger(c.config, "run")
	if err != nil {
		return err
	}
	defer log.Close()

	opts, err := c.flags.options(c.config, "run")
	if err != nil {
		return err
	}
	opts.Logger = log.Logger

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
		_, _ = lipgloss.Fprintln(stdout, skipStyle.Render("SKIP"), s.UnavailableReason())
		return nil
	}

	log.Info("running script", "path", args[0], "batches", len(batches))

	var failed int
	for i, b := range batches {
		s.Reset()
		if err := c.runBatch(ctx, s, b, stdout); err != nil {
			failed++
			_, _ = lipgloss.Fprintln(stdout, failStyle.Render("FAIL"), dimStyle.Render(batchLabel(i, b)))
			_, _ = fmt.Fprintln(stderr, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		} else {
			_, _ = lipgloss.Fprintln(stdout, passStyle.Render("PASS"), dimStyle.Render(batchLabel(i, b)))
		}
	}

	summary := fmt.Sprintf("%d passed, %d failed", len(batches)-failed, failed)
	if failed > 0 {
		_, _ = lipgloss.Fprintln(stdout, failStyle.Render(summary))
		return fmt.Errorf("%d of %d batches failed", failed, len(batches))
	}
	_, _ = lipgloss.Fprintln(stdout, passStyle.Render(summary))
	return nil
}

// runBatch submits b and checks its expectations against the output the
// batch itself produced.
func (c *RunCommand) runBatch(ctx context.Context, s *harness.Session, b batch, stdout io.Writer) error {
	outMark, errMark := s.StdoutBuffer().Len(), s.StderrBuffer().Len()

	_, err := s.SubmitContext(ctx, b.Source)

	out := harness.Normalize(s.StdoutBuffer().Since(outMark))
	if !c.quiet {
		_, _ = fmt.Fprint(stdout, out)
	}
	if err != nil {
		return err
	}

	stderr := harness.Normalize(s.StderrBuffer().Since(errMark))
	for _, expected := range b.Expect {
		if err := harness.AssertContains(expected, out, stderr); err != nil {
			return err
		}
	}
	return nil
}

func (c *RunCommand) readScript(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read script from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

func batchLabel(i int, b batch) string {
	return fmt.Sprintf("batch %d (line %d)", i+1, b.Line)
}
