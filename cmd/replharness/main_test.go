package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func useConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("REPLHARNESS_CONFIG", path)
	return path
}

func TestRun(t *testing.T) {
	useConfig(t, "")

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		stdout  string
		stderr  string
	}{
		{name: "no command shows help", args: nil, stdout: "Usage: replharness <command>"},
		{name: "help flag", args: []string{"--help"}, stdout: "Commands:"},
		{name: "short help flag", args: []string{"-h"}, stdout: "Commands:"},
		{name: "help for command", args: []string{"help", "repl"}, stdout: "-history-file"},
		{name: "version", args: []string{"version"}, stdout: "replharness version " + version},
		{name: "command flag help", args: []string{"run", "-h"}, stderr: "Usage: run [options]"},
		{name: "unknown command", args: []string{"nonexistent"}, wantErr: true, stderr: "Unknown command: nonexistent"},
		{name: "bad flag", args: []string{"version", "-nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("run(%q) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if !strings.Contains(stdout.String(), tt.stdout) {
				t.Errorf("stdout missing %q:\n%s", tt.stdout, stdout.String())
			}
			if !strings.Contains(stderr.String(), tt.stderr) {
				t.Errorf("stderr missing %q:\n%s", tt.stderr, stderr.String())
			}
		})
	}
}

func TestRun_ConfigFile(t *testing.T) {
	path := useConfig(t, "timeout 3s\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"config", "timeout"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if got := stdout.String(); got != "timeout: 3s\n" {
		t.Errorf("Unexpected output: %q", got)
	}

	stdout.Reset()
	if err := run([]string{"config", "path"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(stdout.String()); got != path {
		t.Errorf("Expected path %s, got %s", path, got)
	}
}

func TestRun_Script(t *testing.T) {
	useConfig(t, "timeout 10s\n")

	script := filepath.Join(t.TempDir(), "check.js")
	if err := os.WriteFile(script, []byte("var n = 6\n---\nn * 7\n#=> 42\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"run", script}, &stdout, &stderr); err != nil {
		t.Fatalf("run failed: %v\nstderr: %s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "2 passed, 0 failed") {
		t.Errorf("Unexpected output:\n%s", stdout.String())
	}
}
