// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/skinchat/internal/model"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func testConversation() model.Conversation {
	user := model.NewUserMessage("What's good for dry skin?")
	user.Timestamp = fixedNow

	reply := model.NewAssistantPlaceholder()
	reply.Timestamp = fixedNow.Add(2 * time.Second)
	reply.Content = "Try a ceramide moisturizer."
	reply.Sources = []model.Source{
		{Kind: model.SourceProduct, Title: "CeraVe PM"},
		{Kind: model.SourceWeb, Title: "AAD", URL: "https://aad.org"},
	}
	reply.Finalized = true
	reply.Outcome = model.OutcomeCompleted

	conv := model.NewConversation("abc-123", []model.Message{user, reply})
	return conv
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func TestMarkdownExport(t *testing.T) {
	data, err := NewMarkdownExporter(testOptions()).Export(testConversation())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	got := string(data)

	for _, want := range []string{
		`title: "What's good for dry skin?"`,
		"conversation_id: abc-123",
		"messages: 2",
		"# What's good for dry skin?",
		"### You <sub>09:30:00</sub>",
		"### SkinTech AI <sub>09:30:02</sub>",
		"Try a ceramide moisturizer.",
		"- product: CeraVe PM",
		"- web: [AAD](https://aad.org)",
		"*Exported from skinchat on 2025-03-14 09:30:00*",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown missing %q\n%s", want, got)
		}
	}
}

func TestMarkdownExport_QuotesTitleWithColon(t *testing.T) {
	user := model.NewUserMessage("Retinol: how often?")
	conv := model.NewConversation("", []model.Message{user})

	data, err := NewMarkdownExporter(testOptions()).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(data), `title: "Retinol: how often?"`) {
		t.Errorf("title not quoted:\n%s", data)
	}
	if strings.Contains(string(data), "conversation_id") {
		t.Error("unassigned conversation id should be omitted")
	}
}

func TestMarkdownExport_CancelledAndEmpty(t *testing.T) {
	user := model.NewUserMessage("hi")
	reply := model.NewAssistantPlaceholder()
	reply.Finalized = true
	reply.Outcome = model.OutcomeCancelled
	conv := model.NewConversation("", []model.Message{user, reply})

	opts := testOptions()
	opts.IncludeMetadata = false
	data, err := NewMarkdownExporter(opts).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "*(no content)*") || !strings.Contains(got, "*(cancelled)*") {
		t.Errorf("unexpected markdown:\n%s", got)
	}
	if strings.HasPrefix(got, "---") {
		t.Error("metadata written when disabled")
	}
}

func TestMarkdownExport_Empty(t *testing.T) {
	if _, err := NewMarkdownExporter(nil).Export(model.Conversation{}); err == nil {
		t.Error("expected error for empty conversation")
	}
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	conv := testConversation()

	mdPath, err := ToFile(conv, filepath.Join(dir, "notes.md"), testOptions())
	if err != nil {
		t.Fatalf("ToFile md: %v", err)
	}
	md, _ := os.ReadFile(mdPath)
	if !strings.HasPrefix(string(md), "---\n") {
		t.Errorf("expected markdown, got %q", md[:20])
	}

	jsonPath, err := ToFile(conv, filepath.Join(dir, "notes.JSON"), testOptions())
	if err != nil {
		t.Fatalf("ToFile json: %v", err)
	}
	raw, _ := os.ReadFile(jsonPath)
	var decoded model.Conversation
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json output does not decode: %v", err)
	}
	if decoded.ID != "abc-123" || len(decoded.Messages) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Messages[1].Sources[0].Title != "CeraVe PM" {
		t.Errorf("sources lost: %+v", decoded.Messages[1].Sources)
	}

	info, err := os.Stat(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestDefaultFilename(t *testing.T) {
	conv := testConversation()
	got := DefaultFilename(conv, NewMarkdownExporter(nil), fixedNow)
	want := "conversation_What's_good_for_dry_skin-_20250314_093000.md"
	if got != want {
		t.Errorf("DefaultFilename = %q, want %q", got, want)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a/b\\c:d", "a-b-c-d"},
		{"two words", "two_words"},
		{"", "conversation"},
		{"???", "conversation"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
