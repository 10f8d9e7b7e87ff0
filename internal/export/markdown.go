// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/skinchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown. Messages still streaming are
// written with whatever content they have so far.
func (e *MarkdownExporter) Export(conv model.Conversation) ([]byte, error) {
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Title))
		if conv.ID != "" {
			fmt.Fprintf(&sb, "conversation_id: %s\n", escapeYAML(conv.ID))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format("2006-01-02T15:04:05Z07:00"))
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Title))

	for i, msg := range conv.Messages {
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", msg.Role.DisplayName(), formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", msg.Role.DisplayName())
		}

		content := strings.TrimSpace(msg.Content)
		if content == "" {
			content = "*(no content)*"
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if msg.Role == model.RoleAssistant {
			if e.options.IncludeSources && len(msg.Sources) > 0 {
				sb.WriteString(formatSources(msg.Sources))
				sb.WriteString("\n")
			}
			if msg.Outcome == model.OutcomeCancelled {
				sb.WriteString("*(cancelled)*\n\n")
			}
		}

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n---\n\n*Exported from skinchat on %s*\n",
		formatTimestamp(e.options.now()))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatSources(sources []model.Source) string {
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for _, src := range sources {
		title := escapeMarkdown(src.Title)
		if src.URL != "" {
			fmt.Fprintf(&sb, "- %s: [%s](%s)\n", src.Kind, title, src.URL)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", src.Kind, title)
		}
	}
	return sb.String()
}

// escapeMarkdown escapes characters that would break a heading or link text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a frontmatter value when it contains special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
