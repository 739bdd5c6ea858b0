package main

import (
	"fmt"
	"os"
)

// ANSI escapes. --no-color disables them wholesale.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// printMarked writes one colored, marker-prefixed line to stderr.
// Human-facing progress output goes to stderr so stdout stays clean for
// listings (`fieldsync surveys`).
func printMarked(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	printMarked(colorGreen, "✓", format, args...)
}

func printError(format string, args ...any) {
	printMarked(colorRed, "✗", format, args...)
}

func printWarning(format string, args ...any) {
	printMarked(colorYellow, "⚠", format, args...)
}

func printStep(format string, args ...any) {
	printMarked(colorCyan, "→", format, args...)
}

// statusLabelWidth fits the widest `fieldsync status` label,
// "Connectivity", so values line up in one column.
const statusLabelWidth = len("Connectivity")

func statusLine(label, value string) string {
	padded := fmt.Sprintf("%-*s", statusLabelWidth+1, label+":")
	return "  " + colorize(colorBold, padded) + " " + value
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintln(os.Stderr, statusLine(label, fmt.Sprintf(format, args...)))
}
