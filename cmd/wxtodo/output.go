package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kalambet/wxtodo/internal/items"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

func priorityColor(p items.Priority) string {
	switch p {
	case items.PriorityHigh:
		return colorRed
	case items.PriorityLow:
		return colorGray
	default:
		return colorYellow
	}
}

// formatItemLine renders an item for terminal listings:
// "[ ] 1a2b3c4d  high    Buy laptops  due 2024-01-05  (Office)".
func formatItemLine(it items.Item) string {
	box := "[ ]"
	if it.Completed {
		box = colorize(colorGreen, "[x]")
	}
	id := it.ID
	if len(id) > 8 {
		id = id[:8]
	}
	line := fmt.Sprintf("%s %s  %s  %s", box, colorize(colorCyan, id),
		colorize(priorityColor(it.Priority), fmt.Sprintf("%-6s", it.Priority)), it.Title)
	if it.DueDate != nil {
		line += "  due " + *it.DueDate
	}
	if it.GroupName != nil {
		line += "  " + colorize(colorGray, "("+*it.GroupName+")")
	}
	return line
}

// prettyJSON writes v indented to stdout.
func prettyJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
