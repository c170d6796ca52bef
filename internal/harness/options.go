package harness

import (
	"errors"
	"fmt"

	"github.com/joeycumines/repl-harness/internal/config"
)

// OptionsFromConfig resolves session options for the given config section
// (empty for global), applying environment overrides and schema defaults.
// Probes are built from the precondition and min-go-version options.
func OptionsFromConfig(cfg *config.Config, section string) (Options, error) {
	schema := config.DefaultSchema()
	var opts Options
	var errs []error

	var err error
	if opts.Timeout, err = schema.ResolveDuration(cfg, section, config.KeyTimeout); err != nil {
		errs = append(errs, err)
	}
	if opts.StopTimeout, err = schema.ResolveDuration(cfg, section, config.KeyStopTimeout); err != nil {
		errs = append(errs, err)
	}
	if opts.FailFast, err = schema.ResolveBool(cfg, section, config.KeyFailFast); err != nil {
		errs = append(errs, err)
	}
	if opts.Color, err = schema.ResolveBool(cfg, section, config.KeyColor); err != nil {
		errs = append(errs, err)
	}
	opts.SignalName = schema.Resolve(cfg, section, config.KeySignalName)
	opts.Sentinel = schema.Resolve(cfg, section, config.KeySentinel)
	opts.Target = schema.Resolve(cfg, section, config.KeyTarget)

	if v := schema.Resolve(cfg, section, config.KeyMinGoVersion); v != "" {
		opts.Probes = append(opts.Probes, GoVersionProbe(v))
	}
	if v := schema.Resolve(cfg, section, config.KeyPrecondition); v != "" {
		probe, err := ExprProbe(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			opts.Probes = append(opts.Probes, probe)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Options{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, nil
}
