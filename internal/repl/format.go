package repl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/dop251/goja"
)

const (
	maxStringDisplay = 1000
	maxArrayDisplay  = 20
)

var (
	numberStyle = ansi.NewStyle().ForegroundColor(ansi.Yellow)
	stringStyle = ansi.NewStyle().ForegroundColor(ansi.Green)
	nullStyle   = ansi.NewStyle().Bold()
	errorStyle  = ansi.NewStyle().ForegroundColor(ansi.Red)
)

// formatValue renders a completion value the way the REPL echoes it. The
// second result is false for values that are not echoed (undefined).
func formatValue(val goja.Value, color bool) (string, bool) {
	if val == nil || goja.IsUndefined(val) {
		return "", false
	}
	if goja.IsNull(val) {
		return paint(nullStyle, "null", color), true
	}

	switch v := val.Export().(type) {
	case string:
		if len(v) > maxStringDisplay {
			return paint(stringStyle, strconv.Quote(v[:maxStringDisplay]), color) +
				fmt.Sprintf("... (truncated, total %d chars)", len(v)), true
		}
		return paint(stringStyle, strconv.Quote(v), color), true
	case int64, float64, bool:
		return paint(numberStyle, val.String(), color), true
	case []any:
		return formatArray(v), true
	case map[string]any:
		if b, err := json.Marshal(v); err == nil {
			return string(b), true
		}
		return val.String(), true
	default:
		return val.String(), true
	}
}

func formatArray(v []any) string {
	n := min(len(v), maxArrayDisplay)
	items := make([]string, 0, n+1)
	for _, item := range v[:n] {
		if s, ok := item.(string); ok {
			items = append(items, strconv.Quote(s))
			continue
		}
		items = append(items, fmt.Sprintf("%v", item))
	}
	if len(v) > n {
		items = append(items, fmt.Sprintf("... (%d more items)", len(v)-n))
	}
	return "[" + strings.Join(items, ", ") + "]"
}

func paint(style ansi.Style, s string, color bool) string {
	if !color {
		return s
	}
	return style.Styled(s)
}
