// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// TruncateWidth truncates s so it occupies at most maxWidth terminal cells.
// Truncated strings end in "..." when there is room for it.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, ellipsis)
}

// StringWidth returns the display width of s.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// SingleLine collapses newlines and whitespace runs into single spaces.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
