package harness

import (
	"context"
	"errors"
	"fmt"
	"go/version"
	"os"
	"runtime"
	"strings"

	"github.com/expr-lang/expr"
)

// Probe checks a precondition of the environment before a session starts. A
// non-nil error marks the session unavailable; it is not a test failure.
type Probe func(ctx context.Context) error

// ProbeEnv is the environment exposed to ExprProbe expressions.
type ProbeEnv struct {
	GOOS      string            `expr:"goos"`
	GOARCH    string            `expr:"goarch"`
	GoVersion string            `expr:"goversion"`
	Env       map[string]string `expr:"env"`
}

// CurrentProbeEnv captures the running process's environment.
func CurrentProbeEnv() ProbeEnv {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return ProbeEnv{
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		GoVersion: runtime.Version(),
		Env:       env,
	}
}

// GoVersionProbe requires the running toolchain to be at least min (for
// example "go1.24"). Development toolchains, whose version string is not a
// release version, always pass.
func GoVersionProbe(min string) Probe {
	return func(context.Context) error {
		if !version.IsValid(min) {
			return fmt.Errorf("invalid minimum go version %q", min)
		}
		current := runtime.Version()
		if !version.IsValid(current) {
			return nil
		}
		if version.Compare(current, min) < 0 {
			return fmt.Errorf("go version %s is older than required %s", current, min)
		}
		return nil
	}
}

// ExprProbe evaluates a boolean expression over ProbeEnv, for example
// `goos != "windows" && env["CI"] == ""`. The expression is compiled once,
// when the probe is created.
func ExprProbe(expression string) (Probe, error) {
	program, err := expr.Compile(expression, expr.Env(ProbeEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile precondition %q: %w", expression, err)
	}
	return func(context.Context) error {
		out, err := expr.Run(program, CurrentProbeEnv())
		if err != nil {
			return fmt.Errorf("evaluate precondition %q: %w", expression, err)
		}
		if ok, _ := out.(bool); !ok {
			return fmt.Errorf("precondition not met: %s", expression)
		}
		return nil
	}, nil
}

// runProbes runs every probe, joining all failures.
func runProbes(ctx context.Context, probes []Probe) error {
	var errs []error
	for _, p := range probes {
		if p == nil {
			continue
		}
		if err := p(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
