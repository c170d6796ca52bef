package harness

import (
	"github.com/charmbracelet/x/ansi"
)

// Normalize removes ANSI and other terminal control sequences (SGR colors,
// cursor movement, OSC titles) from s. All other characters, including
// whitespace and line breaks, are kept as-is, so Normalize is idempotent.
func Normalize(s string) string {
	return ansi.Strip(s)
}
