package command

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/repl-harness/internal/config"
)

func newTestRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(NewHelpCommand(registry))
	registry.Register(NewVersionCommand("1.0.0"))
	registry.Register(NewConfigCommand(config.NewConfig(), ""))
	registry.Register(NewRunCommand(config.NewConfig()))
	return registry
}

func TestHelpCommandExecute(t *testing.T) {
	registry := newTestRegistry()
	cmd, err := registry.Get("help")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("general help", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if err := cmd.Execute(nil, &stdout, &stderr); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		output := stdout.String()
		for _, part := range []string{
			"Usage: replharness <command>",
			"Commands:",
			"config",
			"run",
			"Display version information",
		} {
			if !strings.Contains(output, part) {
				t.Errorf("Expected output to contain %q. Output: %s", part, output)
			}
		}
	})

	t.Run("command help shows flags", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		if err := cmd.Execute([]string{"run"}, &stdout, &stderr); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		output := stdout.String()
		for _, part := range []string{"Command: run", "Usage: run [options]", "Flags:", "-timeout", "-separator"} {
			if !strings.Contains(output, part) {
				t.Errorf("Expected output to contain %q. Output: %s", part, output)
			}
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := cmd.Execute([]string{"nope"}, &stdout, &stderr)
		if !errors.Is(err, ErrUnknownCommand) {
			t.Fatalf("Expected ErrUnknownCommand, got: %v", err)
		}
		if !strings.Contains(stderr.String(), "Unknown command: nope") {
			t.Errorf("Unexpected stderr: %s", stderr.String())
		}
	})
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3")

	var stdout, stderr bytes.Buffer
	if err := cmd.Execute(nil, &stdout, &stderr); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := stdout.String(); got != "replharness version 1.2.3\n" {
		t.Errorf("Unexpected output: %q", got)
	}

	if err := cmd.Execute([]string{"extra"}, &stdout, &stderr); err == nil {
		t.Error("Expected error for unexpected arguments")
	}
}

func TestConfigCommand(t *testing.T) {
	for _, k := range []string{"REPLHARNESS_TIMEOUT", "REPLHARNESS_TARGET"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := config.LoadFromReader(strings.NewReader("timeout 2s\n[run]\nseparator ===\n"))
	if err != nil {
		t.Fatal(err)
	}

	run := func(t *testing.T, cmd *ConfigCommand, args ...string) (string, string, error) {
		t.Helper()
		var stdout, stderr bytes.Buffer
		err := cmd.Execute(args, &stdout, &stderr)
		return stdout.String(), stderr.String(), err
	}

	t.Run("file contents", func(t *testing.T) {
		out, _, err := run(t, NewConfigCommand(cfg, ""))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "timeout: 2s") || !strings.Contains(out, "[run]\n  separator: ===") {
			t.Errorf("Unexpected output: %s", out)
		}
	})

	t.Run("get resolves defaults", func(t *testing.T) {
		out, _, err := run(t, NewConfigCommand(cfg, ""), "stop-timeout")
		if err != nil {
			t.Fatal(err)
		}
		if out != "stop-timeout: 5s\n" {
			t.Errorf("Unexpected output: %q", out)
		}
	})

	t.Run("get in section", func(t *testing.T) {
		cmd := NewConfigCommand(cfg, "")
		cmd.section = "run"
		out, _, err := run(t, cmd, "separator")
		if err != nil {
			t.Fatal(err)
		}
		if out != "separator: ===\n" {
			t.Errorf("Unexpected output: %q", out)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		_, stderr, err := run(t, NewConfigCommand(cfg, ""), "bogus")
		if err == nil || !strings.Contains(stderr, "Unknown configuration key") {
			t.Errorf("Expected unknown key error, got %v / %s", err, stderr)
		}
	})

	t.Run("all", func(t *testing.T) {
		cmd := NewConfigCommand(cfg, "")
		cmd.showAll = true
		out, _, err := run(t, cmd)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "timeout") || !strings.Contains(out, "2s") {
			t.Errorf("Unexpected output: %s", out)
		}
	})

	t.Run("schema", func(t *testing.T) {
		out, _, err := run(t, NewConfigCommand(cfg, ""), "schema")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "fail-fast") {
			t.Errorf("Schema help missing fail-fast: %s", out)
		}
	})

	t.Run("validate", func(t *testing.T) {
		out, _, err := run(t, NewConfigCommand(cfg, ""), "validate")
		if err != nil {
			t.Fatalf("Expected valid config, got %v: %s", err, out)
		}

		bad := config.NewConfig()
		bad.SetGlobalOption("timeout", "whenever")
		out, _, err = run(t, NewConfigCommand(bad, ""), "validate")
		if err == nil || !strings.Contains(out, "1 issue") {
			t.Errorf("Expected one issue, got %v: %s", err, out)
		}
	})

	t.Run("set persists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config")
		local := config.NewConfig()
		out, _, err := run(t, NewConfigCommand(local, path), "target", "localhost:9000")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "Set configuration: target = localhost:9000") {
			t.Errorf("Unexpected output: %s", out)
		}
		if v, _ := local.GetGlobalOption("target"); v != "localhost:9000" {
			t.Errorf("In-memory value not updated: %q", v)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "target localhost:9000") {
			t.Errorf("Unexpected file contents: %q", data)
		}
	})

	t.Run("set in section rejected", func(t *testing.T) {
		cmd := NewConfigCommand(config.NewConfig(), "")
		cmd.section = "run"
		if _, _, err := run(t, cmd, "separator", "+++"); err == nil {
			t.Error("Expected error")
		}
	})

	t.Run("path", func(t *testing.T) {
		out, _, err := run(t, NewConfigCommand(cfg, "/tmp/x/config"), "path")
		if err != nil || out != "/tmp/x/config\n" {
			t.Errorf("Unexpected result %v: %q", err, out)
		}
	})
}
