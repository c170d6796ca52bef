package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OptionType describes how a config value is parsed.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
)

// ConfigOption describes one known configuration key.
type ConfigOption struct {
	// Key is the option name as written in the config file.
	Key string
	// Type determines validation and typed resolution.
	Type OptionType
	// Default is used when neither the environment nor the file sets the key.
	Default string
	// Description is shown by `config --schema`.
	Description string
	// Section restricts the option to a [section]; empty means global.
	Section string
	// EnvVar, if set, overrides any file value.
	EnvVar string
}

// ConfigSchema is the registry of known options.
type ConfigSchema struct {
	options   []*ConfigOption
	byKey     map[string]*ConfigOption
	bySection map[string]map[string]*ConfigOption
}

// NewSchema returns an empty schema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{
		byKey:     make(map[string]*ConfigOption),
		bySection: make(map[string]map[string]*ConfigOption),
	}
}

// Register adds opt, replacing any option with the same section and key.
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := new(ConfigOption)
	*ref = opt
	s.options = append(s.options, ref)
	if opt.Section == "" {
		s.byKey[opt.Key] = ref
		return
	}
	if s.bySection[opt.Section] == nil {
		s.bySection[opt.Section] = make(map[string]*ConfigOption)
	}
	s.bySection[opt.Section][opt.Key] = ref
}

// RegisterAll registers each option in order.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the option registered for exactly section and key, or nil.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	if section == "" {
		return s.byKey[key]
	}
	if sec, ok := s.bySection[section]; ok {
		return sec[key]
	}
	return nil
}

// lookupWithFallback is Lookup falling back to the global option.
func (s *ConfigSchema) lookupWithFallback(section, key string) *ConfigOption {
	if opt := s.Lookup(section, key); opt != nil {
		return opt
	}
	return s.byKey[key]
}

// IsKnown reports whether key is valid in section. Global options are valid
// in every section.
func (s *ConfigSchema) IsKnown(section, key string) bool {
	return s.lookupWithFallback(section, key) != nil
}

// GlobalOptions returns copies of the global options, in registration order.
func (s *ConfigSchema) GlobalOptions() []ConfigOption {
	return s.SectionOptions("")
}

// SectionOptions returns copies of the options of section, in registration
// order.
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the sorted names of sections with registered options.
func (s *ConfigSchema) Sections() []string {
	out := make([]string, 0, len(s.bySection))
	for sec := range s.bySection {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective value of key for section (empty for global):
// the option's environment variable, then the section value, then the global
// value, then the schema default.
func (s *ConfigSchema) Resolve(c *Config, section, key string) string {
	opt := s.lookupWithFallback(section, key)
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if c != nil {
		if section != "" {
			if v, ok := c.GetCommandOption(section, key); ok {
				return v
			}
		} else if v, ok := c.GetGlobalOption(key); ok {
			return v
		}
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ResolveBool is Resolve parsed as a bool. Empty values are false.
func (s *ConfigSchema) ResolveBool(c *Config, section, key string) (bool, error) {
	v := s.Resolve(c, section, key)
	if v == "" {
		return false, nil
	}
	b, err := parseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %q: %w", key, err)
	}
	return b, nil
}

// ResolveInt is Resolve parsed as an int. Empty values are zero.
func (s *ConfigSchema) ResolveInt(c *Config, section, key string) (int, error) {
	v := s.Resolve(c, section, key)
	if v == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: %w", key, err)
	}
	return i, nil
}

// ResolveDuration is Resolve parsed as a time.Duration. Empty values are zero.
func (s *ConfigSchema) ResolveDuration(c *Config, section, key string) (time.Duration, error) {
	v := s.Resolve(c, section, key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: %w", key, err)
	}
	return d, nil
}

// ValidateConfig reports unknown options and values that do not parse as
// their declared type, sorted.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for section, opts := range c.Commands {
		for key, value := range opts {
			opt := s.lookupWithFallback(section, key)
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option for command %q: %q (value: %q)", section, key, value))
				continue
			}
			if err := validateType(opt.Type, value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// FormatHelp renders the schema as human-readable text.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder

	if globals := s.GlobalOptions(); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}

	for _, sec := range s.Sections() {
		opts := s.SectionOptions(sec)
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range opts {
			writeOptionHelp(&b, o)
		}
	}

	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-20s %s", o.Key, o.Description)
	parts := make([]string, 0, 3)
	if o.Type != "" && o.Type != TypeString {
		parts = append(parts, fmt.Sprintf("type: %s", o.Type))
	}
	if o.Default != "" {
		parts = append(parts, fmt.Sprintf("default: %s", o.Default))
	}
	if o.EnvVar != "" {
		parts = append(parts, fmt.Sprintf("env: %s", o.EnvVar))
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// Option keys.
const (
	KeyTimeout       = "timeout"
	KeyStopTimeout   = "stop-timeout"
	KeySignalName    = "signal-name"
	KeySentinel      = "sentinel"
	KeyFailFast      = "fail-fast"
	KeyTarget        = "target"
	KeyColor         = "color"
	KeyPrecondition  = "precondition"
	KeyMinGoVersion  = "min-go-version"
	KeyLogFile       = "log.file"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyLogBufferSize = "log.buffer-size"
	KeyPrompt        = "prompt"
	KeyHistoryFile   = "history-file"
	KeyHistorySize   = "history-size"
	KeySeparator     = "separator"
)

// DefaultSchema returns the schema of every option the application reads.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll(defaultGlobalOptions())
	s.RegisterAll(defaultCommandOptions())
	return s
}

func defaultGlobalOptions() []ConfigOption {
	return []ConfigOption{
		// Session options
		{Key: KeyTimeout, Type: TypeDuration, Default: "30s", Description: "Maximum wait for one command batch", EnvVar: "REPLHARNESS_TIMEOUT"},
		{Key: KeyStopTimeout, Type: TypeDuration, Default: "5s", Description: "Maximum wait for the REPL to stop"},
		{Key: KeySignalName, Type: TypeString, Default: "semaphore", Description: "REPL global bound to the completion signal"},
		{Key: KeySentinel, Type: TypeString, Default: "", Description: "Statement appended to every batch (default: <signal-name>.release())"},
		{Key: KeyFailFast, Type: TypeBool, Default: "false", Description: "Abort a batch on the first evaluation error", EnvVar: "REPLHARNESS_FAIL_FAST"},
		{Key: KeyTarget, Type: TypeString, Default: "", Description: "Connection target exposed to scripts", EnvVar: "REPLHARNESS_TARGET"},
		{Key: KeyColor, Type: TypeBool, Default: "false", Description: "Colorize REPL output"},

		// Preconditions
		{Key: KeyPrecondition, Type: TypeString, Default: "", Description: "Boolean expression that must hold for the session to start", EnvVar: "REPLHARNESS_PRECONDITION"},
		{Key: KeyMinGoVersion, Type: TypeString, Default: "", Description: "Minimum Go toolchain version, e.g. go1.24"},

		// Logging options
		{Key: KeyLogFile, Type: TypeString, Default: "", Description: "Log file path", EnvVar: "REPLHARNESS_LOG_FILE"},
		{Key: KeyLogLevel, Type: TypeString, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "REPLHARNESS_LOG_LEVEL"},
		{Key: KeyLogFormat, Type: TypeString, Default: "text", Description: "Log file format: text, json"},
		{Key: KeyLogBufferSize, Type: TypeInt, Default: "1000", Description: "In-memory log buffer size (entries)"},
	}
}

func defaultCommandOptions() []ConfigOption {
	return []ConfigOption{
		// [repl] section
		{Key: KeyPrompt, Section: "repl", Type: TypeString, Default: "> ", Description: "Interactive prompt prefix"},
		{Key: KeyHistoryFile, Section: "repl", Type: TypeString, Default: "", Description: "File to persist interactive history"},
		{Key: KeyHistorySize, Section: "repl", Type: TypeInt, Default: "1000", Description: "Maximum history entries kept"},

		// [run] section
		{Key: KeySeparator, Section: "run", Type: TypeString, Default: "---", Description: "Line separating batches in a script file"},
	}
}
