// Package util provides small shared helpers used across the codebase.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateString truncates a string to maxLen runes, adding "..." if
// truncated. It does not account for ANSI escape codes or wide
// characters; for styled terminal output use TruncateANSI instead.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// TruncateANSI truncates a string to maxWidth visual columns, adding
// "..." if truncated. Escape sequences and wide characters are handled
// correctly, so styled transcript lines keep their coloring.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate includes the tail in the final width calculation.
	return ansi.Truncate(s, maxWidth, "...")
}
