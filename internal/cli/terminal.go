// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// isTerminal reports whether v is an *os.File attached to a terminal.
// Buffers and pipes used by tests report false.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width we'll use for wrapping
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the stdout width, or DefaultTerminalWidth.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

var (
	colorsEnabled     bool
	colorsEnabledOnce sync.Once
)

// ColorsEnabled returns true if colored output should be used.
// Respects NO_COLOR (https://no-color.org/) and FORCE_COLOR.
func ColorsEnabled() bool {
	colorsEnabledOnce.Do(func() {
		if os.Getenv("NO_COLOR") != "" {
			colorsEnabled = false
			return
		}
		if os.Getenv("FORCE_COLOR") != "" {
			colorsEnabled = true
			return
		}
		colorsEnabled = IsStdoutTTY()
	})
	return colorsEnabled
}

// GetColorProfile returns the termenv profile for styled output.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// =============================================================================
// INTERACTIVE INPUT
// =============================================================================

// TTYRequiredError is returned when an operation requires a TTY but none is available.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation != "" {
		return "stdin is not a terminal; cannot " + e.Operation + " interactively"
	}
	return "stdin is not a terminal; interactive input not available"
}

// readLine prints prompt to w and reads one line from r.
func readLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	if prompt != "" {
		io.WriteString(w, prompt)
	}
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "read input")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads a secret without echo when in is a terminal, and as a
// plain line otherwise (for --password-stdin and tests).
func readPassword(in *bufio.Reader, rawIn io.Reader, w io.Writer, prompt string) (string, error) {
	if f, ok := rawIn.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		io.WriteString(w, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		io.WriteString(w, "\n")
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return string(b), nil
	}
	return readLine(in, io.Discard, "")
}
