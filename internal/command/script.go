package command

import (
	"strings"
)

// expectPrefix marks a script line as an expected output fragment of its
// batch, rather than REPL input.
const expectPrefix = "#=>"

// batch is one command batch of a script file.
type batch struct {
	// Source is submitted to the REPL verbatim.
	Source string
	// Expect lists fragments the batch's stdout must contain.
	Expect []string
	// Line is the 1-based line of the batch's first source line.
	Line int
}

// parseScript splits src into batches at lines consisting only of
// separator. Blank batches are dropped, along with any expectations they
// carry.
func parseScript(src, separator string) []batch {
	var (
		out     []batch
		current batch
		lines   []string
	)
	flush := func() {
		current.Source = strings.Join(lines, "\n")
		if strings.TrimSpace(current.Source) != "" {
			out = append(out, current)
		}
		current, lines = batch{}, nil
	}

	n := 0
	for line := range strings.Lines(src) {
		n++
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)
		switch {
		case n == 1 && strings.HasPrefix(line, "#!"):
		case trimmed == separator:
			flush()
		case strings.HasPrefix(trimmed, expectPrefix):
			current.Expect = append(current.Expect, strings.TrimSpace(strings.TrimPrefix(trimmed, expectPrefix)))
		default:
			if current.Line == 0 && trimmed != "" {
				current.Line = n
			}
			lines = append(lines, line)
		}
	}
	flush()
	return out
}
