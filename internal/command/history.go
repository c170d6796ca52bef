package command

import (
	"os"
	"strings"

	"github.com/joeycumines/repl-harness/internal/config"
)

// loadHistory reads a history file, one entry per line. A missing or
// unreadable file is an empty history.
func loadHistory(filename string) []string {
	if filename == "" {
		return nil
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil
	}
	var history []string
	for line := range strings.Lines(string(content)) {
		if line = strings.TrimSpace(line); line != "" {
			history = append(history, line)
		}
	}
	return history
}

// saveHistory writes the newest size entries of history to filename.
func saveHistory(filename string, history []string, size int) error {
	if filename == "" || len(history) == 0 {
		return nil
	}
	if size > 0 && len(history) > size {
		history = history[len(history)-size:]
	}
	content := strings.Join(history, "\n") + "\n"
	return config.AtomicWriteFile(filename, []byte(content), 0600)
}
