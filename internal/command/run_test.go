package command

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/repl-harness/internal/config"
	"github.com/joeycumines/repl-harness/internal/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearHarnessEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REPLHARNESS_TIMEOUT",
		"REPLHARNESS_FAIL_FAST",
		"REPLHARNESS_TARGET",
		"REPLHARNESS_PRECONDITION",
		"REPLHARNESS_LOG_FILE",
		"REPLHARNESS_LOG_LEVEL",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.js")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func newTestRunCommand(cfg *config.Config) *RunCommand {
	cmd := NewRunCommand(cfg)
	cmd.flags.timeout = 10 * time.Second
	return cmd
}

func TestRunCommand_Pass(t *testing.T) {
	clearHarnessEnv(t)

	path := writeScript(t, `var x = 20
---
x * 2 + 2
#=> 42
---
print('hi ' + target)
#=> hi local:1
---
compute("1+1")
#=> 2
`)
	cmd := newTestRunCommand(config.NewConfig())
	cmd.flags.target = "local:1"

	var stdout, stderr bytes.Buffer
	require.NoError(t, cmd.Execute([]string{path}, &stdout, &stderr), stderr.String())

	out := harness.Normalize(stdout.String())
	assert.Contains(t, out, "42\n")
	assert.Contains(t, out, "hi local:1\n")
	assert.Equal(t, 4, strings.Count(out, "PASS"))
	assert.Contains(t, out, "batch 3 (line 6)")
	assert.Contains(t, out, "4 passed, 0 failed")
	assert.Empty(t, stderr.String())
}

func TestRunCommand_Failures(t *testing.T) {
	clearHarnessEnv(t)

	path := writeScript(t, `print('one')
#=> two
---
nosuchfunction()
---
print('still running')
#=> still running
`)
	cmd := newTestRunCommand(config.NewConfig())
	cmd.flags.failFast = true

	var stdout, stderr bytes.Buffer
	err := cmd.Execute([]string{path}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 batches failed")

	out := harness.Normalize(stdout.String())
	assert.Equal(t, 2, strings.Count(out, "FAIL"))
	assert.Contains(t, out, "still running")
	assert.Contains(t, out, "1 passed, 2 failed")

	assert.Contains(t, stderr.String(), `output does not contain "two"`)
	assert.Contains(t, stderr.String(), "nosuchfunction")
}

func TestRunCommand_ConfigSeparatorAndStdin(t *testing.T) {
	clearHarnessEnv(t)

	cfg, err := config.LoadFromReader(strings.NewReader("[run]\nseparator ;;\n"))
	require.NoError(t, err)

	cmd := newTestRunCommand(cfg)
	cmd.quiet = true
	cmd.stdin = strings.NewReader("print('a')\n;;\nprint('b')\n#=> b\n")

	var stdout, stderr bytes.Buffer
	require.NoError(t, cmd.Execute([]string{"-"}, &stdout, &stderr))

	out := harness.Normalize(stdout.String())
	assert.NotContains(t, out, "a\n", "quiet suppresses batch output")
	assert.Contains(t, out, "2 passed, 0 failed")
}

func TestRunCommand_Unavailable(t *testing.T) {
	clearHarnessEnv(t)

	cfg := config.NewConfig()
	cfg.SetGlobalOption(config.KeyPrecondition, "goos == 'plan10'")

	var stdout, stderr bytes.Buffer
	require.NoError(t, newTestRunCommand(cfg).Execute([]string{writeScript(t, "print(1)")}, &stdout, &stderr))
	assert.Contains(t, harness.Normalize(stdout.String()), "SKIP")
	assert.Contains(t, stdout.String(), "plan10")
}

func TestRunCommand_Errors(t *testing.T) {
	clearHarnessEnv(t)

	var stdout, stderr bytes.Buffer
	cmd := newTestRunCommand(config.NewConfig())

	assert.Error(t, cmd.Execute(nil, &stdout, &stderr))
	assert.Error(t, cmd.Execute([]string{filepath.Join(t.TempDir(), "missing.js")}, &stdout, &stderr))
	assert.Error(t, cmd.Execute([]string{writeScript(t, "---\n\n---\n")}, &stdout, &stderr))

	cfg := config.NewConfig()
	cfg.SetGlobalOption(config.KeyTimeout, "eventually")
	assert.Error(t, newTestRunCommand(cfg).Execute([]string{writeScript(t, "1")}, &stdout, &stderr))
}
