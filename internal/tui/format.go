package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

func truncate(s string, max int) string {
	if max <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// singleLine collapses whitespace so a body fits on one list row.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatRelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Second {
		return "now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func formatTimestamp(millis int64, relative bool, now time.Time) string {
	if millis == 0 {
		return "--:--:--"
	}
	t := time.UnixMilli(millis)
	if relative {
		return formatRelativeTime(t, now)
	}
	return t.Format("15:04:05")
}

// formatBody pretty-prints JSON object bodies and returns anything else as is.
func formatBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return body
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
		return body
	}
	return formatJSONSyntax(data)
}

// formatJSONSyntax formats JSON with syntax highlighting
func formatJSONSyntax(data map[string]any) string {
	var sb strings.Builder
	formatValueSyntax(&sb, data, 0)
	return sb.String()
}

func formatValueSyntax(sb *strings.Builder, v any, indent int) {
	indentStr := strings.Repeat("  ", indent)

	switch val := v.(type) {
	case map[string]any:
		sb.WriteString("{\n")
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			sb.WriteString(indentStr)
			sb.WriteString("  ")
			sb.WriteString(jsonKeyStyle.Render(fmt.Sprintf("%q", k)))
			sb.WriteString(": ")
			formatValueSyntax(sb, val[k], indent+1)
			if i < len(keys)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(indentStr)
		sb.WriteString("}")
	case []any:
		sb.WriteString("[\n")
		for i, item := range val {
			sb.WriteString(indentStr)
			sb.WriteString("  ")
			formatValueSyntax(sb, item, indent+1)
			if i < len(val)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(indentStr)
		sb.WriteString("]")
	case string:
		sb.WriteString(jsonStringStyle.Render(fmt.Sprintf("%q", val)))
	case float64:
		sb.WriteString(jsonNumberStyle.Render(fmt.Sprintf("%v", val)))
	case bool:
		sb.WriteString(jsonBoolStyle.Render(fmt.Sprintf("%v", val)))
	case nil:
		sb.WriteString(jsonNullStyle.Render("null"))
	default:
		if jsonBytes, err := json.Marshal(val); err == nil {
			sb.WriteString(string(jsonBytes))
		} else {
			fmt.Fprintf(sb, "%v", val)
		}
	}
}
