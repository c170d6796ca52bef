package command

import (
	"flag"
	"fmt"
	"time"

	"github.com/joeycumines/repl-harness/internal/config"
	"github.com/joeycumines/repl-harness/internal/harness"
	"github.com/joeycumines/repl-harness/internal/logging"
)

// sessionFlags are the flags shared by commands that drive a session. Unset
// flags defer to the configuration.
type sessionFlags struct {
	timeout  time.Duration
	target   string
	failFast bool
	color    bool
	logFile  string
	logLevel string
}

func (f *sessionFlags) setup(fs *flag.FlagSet) {
	fs.DurationVar(&f.timeout, "timeout", 0, "Maximum wait for each command batch (overrides config)")
	fs.StringVar(&f.target, "target", "", "Connection target exposed to scripts as `target`")
	fs.BoolVar(&f.failFast, "fail-fast", false, "Fail a batch on its first evaluation error instead of waiting for the timeout")
	fs.BoolVar(&f.color, "color", false, "Colorize REPL output")
	fs.StringVar(&f.logFile, "log-file", "", "Write logs to this file (overrides config log.file)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config log.level)")
}

// options resolves session options for section, with flags applied on top.
func (f *sessionFlags) options(cfg *config.Config, section string) (harness.Options, error) {
	opts, err := harness.OptionsFromConfig(cfg, section)
	if err != nil {
		return harness.Options{}, err
	}
	if f.timeout > 0 {
		opts.Timeout = f.timeout
	}
	if f.target != "" {
		opts.Target = f.target
	}
	if f.failFast {
		opts.FailFast = true
	}
	if f.color {
		opts.Color = true
	}
	return opts, nil
}

// logger builds the command's logger from flags and configuration. The
// caller must Close it.
func (f *sessionFlags) logger(cfg *config.Config, section string) (*logging.Logger, error) {
	schema := config.DefaultSchema()

	levelStr := f.logLevel
	if levelStr == "" {
		levelStr = schema.Resolve(cfg, section, config.KeyLogLevel)
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	size, err := schema.ResolveInt(cfg, section, config.KeyLogBufferSize)
	if err != nil {
		return nil, err
	}

	file := f.logFile
	if file == "" {
		file = schema.Resolve(cfg, section, config.KeyLogFile)
	}

	log, err := logging.New(logging.Options{
		Level:      level,
		BufferSize: size,
		File:       file,
		Format:     schema.Resolve(cfg, section, config.KeyLogFormat),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return log, nil
}
