// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	data := []byte("eyJhbGciOi.test")

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("mode = %o, want 0600", info.Mode().Perm())
		}
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "config.toml")

	if err := AtomicWriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")

	if err := AtomicWriteFile(path, []byte("initial"), 0600); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0600); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "updated" {
		t.Errorf("got %q, want %q", content, "updated")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		want     string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"ascii truncated", "hello world", 8, "hello..."},
		{"zero width", "hello", 0, ""},
		{"tiny width no ellipsis", "hello", 2, "he"},
		{"cjk counts double", "日本語テキスト", 7, "日本..."},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWidth(tt.input, tt.maxWidth)
			if got != tt.want {
				t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.input, tt.maxWidth, got, tt.want)
			}
			if StringWidth(got) > tt.maxWidth {
				t.Errorf("result %q is wider than %d", got, tt.maxWidth)
			}
		})
	}
}

func TestSingleLine(t *testing.T) {
	got := SingleLine("  What's good\n\nfor   dry skin?\t")
	if got != "What's good for dry skin?" {
		t.Errorf("SingleLine() = %q", got)
	}
}
