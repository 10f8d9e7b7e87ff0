// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss to respect NO_COLOR, FORCE_COLOR, and TTY detection.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(16)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for hints and statistics
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// PromptStyle colors the REPL prompt.
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	// AssistantStyle labels assistant turns.
	AssistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("177")).
			Bold(true)

	// ProductSourceStyle and WebSourceStyle tag source entries.
	ProductSourceStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("212"))
	WebSourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule of width w (default 40).
func RenderSeparator(w int) string {
	if w <= 0 {
		w = 40
	}
	return SeparatorStyle.Render(strings.Repeat("─", w))
}

// RenderStatus renders a bracketed status tag.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok":
		return SuccessStyle.Render("[OK]")
	case "fail", "error":
		return ErrorStyle.Render("[FAIL]")
	case "warn":
		return WarningStyle.Render("[WARN]")
	default:
		return DimStyle.Render("[" + strings.ToUpper(status) + "]")
	}
}

// RenderLabel renders a fixed-width label.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}
