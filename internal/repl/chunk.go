package repl

import (
	"iter"
	"strings"

	"github.com/dop251/goja"
)

// chunks splits a unit into complete inputs, the way an interactive REPL
// treats pasted text: lines are accumulated until they compile. A trailing
// accumulation that never compiles yields its compile error.
func chunks(unit string) iter.Seq2[*goja.Program, error] {
	return func(yield func(*goja.Program, error) bool) {
		var (
			pending strings.Builder
			lastErr error
		)
		for line := range strings.Lines(unit) {
			pending.WriteString(line)
			src := pending.String()
			if strings.TrimSpace(src) == "" {
				pending.Reset()
				continue
			}
			prg, err := goja.Compile(scriptName, src, false)
			if err != nil {
				lastErr = err
				continue
			}
			pending.Reset()
			lastErr = nil
			if !yield(prg, nil) {
				return
			}
		}
		if lastErr != nil {
			yield(nil, lastErr)
		}
	}
}

// inputs is chunks, except that a unit ending with the sentinel line has the
// sentinel evaluated as an input of its own, after everything before it. An
// incomplete statement before the sentinel is then reported as a compile
// error instead of absorbing it.
func inputs(unit, sentinel string) iter.Seq2[*goja.Program, error] {
	body, ok := cutSentinel(unit, sentinel)
	if !ok {
		return chunks(unit)
	}
	return func(yield func(*goja.Program, error) bool) {
		for prg, err := range chunks(body) {
			if !yield(prg, err) || err != nil {
				return
			}
		}
		yield(goja.Compile(scriptName, sentinel, false))
	}
}

// cutSentinel returns unit without its final line, if that line is sentinel.
func cutSentinel(unit, sentinel string) (string, bool) {
	sentinel = strings.TrimSpace(sentinel)
	if sentinel == "" {
		return unit, false
	}
	body, last := "", strings.TrimRight(unit, "\r\n")
	if i := strings.LastIndexByte(last, '\n'); i >= 0 {
		body, last = last[:i+1], last[i+1:]
	}
	if strings.TrimSpace(last) != sentinel {
		return unit, false
	}
	return body, true
}
