// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"golang.org/x/time/rate"

	"github.com/jeranaias/skinchat/internal/model"
)

// =============================================================================
// STREAM BUFFER
// =============================================================================

// streamBuffer coalesces deltas so the terminal is written at most
// refreshHz times per second however fast fragments arrive.
type streamBuffer struct {
	mu      sync.Mutex
	pending strings.Builder
	limiter *rate.Limiter
}

func newStreamBuffer(refreshHz int) *streamBuffer {
	if refreshHz <= 0 {
		refreshHz = 20
	}
	return &streamBuffer{limiter: rate.NewLimiter(rate.Limit(refreshHz), 1)}
}

// write queues text and returns what should be drawn now, if anything.
func (b *streamBuffer) write(text string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending.WriteString(text)
	if b.pending.Len() == 0 || !b.limiter.Allow() {
		return "", false
	}
	return b.takeLocked(), true
}

// flush returns everything still queued.
func (b *streamBuffer) flush() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending.Len() == 0 {
		return "", false
	}
	return b.takeLocked(), true
}

func (b *streamBuffer) takeLocked() string {
	s := b.pending.String()
	b.pending.Reset()
	return s
}

// =============================================================================
// RENDERER
// =============================================================================

type renderOptions struct {
	// Markdown renders the finished answer with glamour instead of
	// streaming raw text. Only honored on a terminal.
	Markdown    bool
	Theme       string
	Width       int
	RefreshHz   int
	ShowSources bool
}

// renderer draws one assistant message at a time from state snapshots.
// It is subscribed to the session state and so runs on the turn goroutine.
type renderer struct {
	out    io.Writer
	status io.Writer
	opts   renderOptions
	md     *glamour.TermRenderer

	mu      sync.Mutex
	id      string
	printed int
	buf     *streamBuffer
	done    bool
}

func newRenderer(out, status io.Writer, opts renderOptions) *renderer {
	r := &renderer{out: out, status: status, opts: opts}
	if opts.Markdown {
		r.md = newMarkdownRenderer(opts.Theme, opts.Width)
	}
	return r
}

func newMarkdownRenderer(theme string, width int) *glamour.TermRenderer {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	style := glamour.WithAutoStyle()
	if theme != "" && theme != "auto" {
		style = glamour.WithStandardStyle(theme)
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return md
}

// observe is a session.Observer. A new assistant placeholder becomes the
// rendered message; the placeholder is always published before any of its
// deltas, so nothing is missed.
func (r *renderer) observe(msg model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.Role == model.RoleAssistant && msg.ID != r.id && !msg.Finalized && msg.Content == "" {
		r.id = msg.ID
		r.printed = 0
		r.done = false
		r.buf = newStreamBuffer(r.opts.RefreshHz)
	}
	if msg.ID != r.id || r.done {
		return
	}

	if r.md != nil {
		if msg.Finalized {
			r.done = true
			r.finishMarkdown(msg)
		} else if r.buf.limiter.Allow() {
			fmt.Fprintf(r.status, "\r%s", DimStyle.Render(fmt.Sprintf("receiving... %d chars", len(msg.Content))))
		}
		return
	}

	if len(msg.Content) > r.printed {
		delta := msg.Content[r.printed:]
		r.printed = len(msg.Content)
		if text, ok := r.buf.write(delta); ok {
			io.WriteString(r.out, text)
		}
	}
	if msg.Finalized {
		r.done = true
		if text, ok := r.buf.flush(); ok {
			io.WriteString(r.out, text)
		}
		io.WriteString(r.out, "\n")
		r.writeSources(msg.Sources)
	}
}

func (r *renderer) finishMarkdown(msg model.Message) {
	fmt.Fprint(r.status, "\r\033[K")
	rendered, err := r.md.Render(msg.Content)
	if err != nil {
		rendered = msg.Content + "\n"
	}
	io.WriteString(r.out, rendered)
	r.writeSources(msg.Sources)
}

func (r *renderer) writeSources(sources []model.Source) {
	if !r.opts.ShowSources || len(sources) == 0 {
		return
	}
	io.WriteString(r.out, formatSources(sources))
}

// formatSources lists sources one per line under a heading.
func formatSources(sources []model.Source) string {
	var b strings.Builder
	b.WriteString(DimStyle.Render("Sources:"))
	b.WriteString("\n")
	for _, src := range sources {
		tag := ProductSourceStyle.Render("[product]")
		if src.Kind == model.SourceWeb {
			tag = WebSourceStyle.Render("[web]")
		}
		line := "  " + tag + " " + src.Title
		if src.URL != "" {
			line += " " + DimStyle.Render("("+src.URL+")")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
