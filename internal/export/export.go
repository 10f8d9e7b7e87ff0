// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/skinchat/internal/model"
	"github.com/jeranaias/skinchat/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation snapshot to a file format.
type Exporter interface {
	// Export returns the encoded conversation.
	Export(conv model.Conversation) ([]byte, error)

	// FileExtension returns the extension including the dot (".md").
	FileExtension() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds a header with the conversation id and counts.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool

	// IncludeSources lists product and web sources under each answer.
	IncludeSources bool

	// Now stamps the export footer. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeSources:    true,
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ForPath picks an exporter from the file extension. Anything other than
// .json is written as Markdown.
func ForPath(path string, opts *Options) Exporter {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONExporter(opts)
	}
	return NewMarkdownExporter(opts)
}

// ToFile writes conv to path, replacing any existing file atomically.
// An empty path writes to DefaultFilename in the current directory.
// Returns the path written.
func ToFile(conv model.Conversation, path string, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if path == "" {
		path = DefaultFilename(conv, NewMarkdownExporter(opts), opts.now())
	}

	content, err := ForPath(path, opts).Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}
	if err := util.AtomicWriteFile(path, content, 0600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// DefaultFilename builds "conversation_<title>_<timestamp><ext>".
func DefaultFilename(conv model.Conversation, exporter Exporter, at time.Time) string {
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.Title),
		at.Format("20060102_150405"),
		exporter.FileExtension(),
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 || strings.Trim(string(result), "-_.") == "" {
		return "conversation"
	}
	return string(result)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
