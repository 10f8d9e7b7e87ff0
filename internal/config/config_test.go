// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SKINCHAT_HOME", dir)
	for _, k := range []string{"SKINCHAT_BASE_URL", "SKINCHAT_TOKEN", "SKINCHAT_TOKEN_FILE", "SKINCHAT_LOG_LEVEL", "SKINCHAT_TIMEOUT"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %v, want 30s", cfg.Timeout())
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.Server.BaseURL, DefaultBaseURL)
	}
	if cfg.Server.ChatPath != DefaultChatPath {
		t.Errorf("ChatPath = %q", cfg.Server.ChatPath)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := isolate(t)
	content := "[server]\nbase_url = \"https://skin.example.com\"\n\n[log]\nlevel = \"debug\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != "https://skin.example.com" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Server.TimeoutSecs != DefaultTimeoutSecs {
		t.Errorf("TimeoutSecs = %d, want default", cfg.Server.TimeoutSecs)
	}
	if !cfg.UI.Markdown {
		t.Error("Markdown default lost")
	}

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}
}

func TestLoadFromPath_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nbase_uri = \"x\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromPath(path)
	if err == nil || !strings.Contains(err.Error(), "server.base_uri") {
		t.Fatalf("LoadFromPath() error = %v, want unknown key", err)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[server]\nbase_url = \"ftp://x\"\ntimeout_secs = 0\n\n[ui]\ntheme = \"neon\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromPath(path)
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidateErrors", err)
	}
	fields := map[string]bool{}
	for _, v := range verrs {
		fields[v.Field] = true
	}
	for _, f := range []string{"server.base_url", "ui.theme"} {
		if !fields[f] {
			t.Errorf("missing validation error for %s (got %v)", f, verrs)
		}
	}
	// timeout_secs = 0 is filled by SetDefaults.
	if fields["server.timeout_secs"] {
		t.Error("zero timeout should fall back to the default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Server.BaseURL = "not a url" }, "server.base_url"},
		{"chat path", func(c *Config) { c.Server.ChatPath = "api/chat" }, "server.chat_path"},
		{"timeout", func(c *Config) { c.Server.TimeoutSecs = 601 }, "server.timeout_secs"},
		{"frame size", func(c *Config) { c.Server.MaxFrameBytes = 10 }, "server.max_frame_bytes"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"refresh", func(c *Config) { c.UI.RefreshHz = 120 }, "ui.refresh_hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) || len(verrs) != 1 || verrs[0].Field != tt.field {
				t.Errorf("Validate() = %v, want single error on %s", err, tt.field)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("SKINCHAT_BASE_URL", "https://env.example.com")
	t.Setenv("SKINCHAT_TOKEN", "env-token")
	t.Setenv("SKINCHAT_TOKEN_FILE", "/tmp/skinchat-token")
	t.Setenv("SKINCHAT_LOG_LEVEL", "debug")
	t.Setenv("SKINCHAT_TIMEOUT", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Auth.Token != "env-token" {
		t.Errorf("Token = %q", cfg.Auth.Token)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v", cfg.Timeout())
	}
	path, err := cfg.TokenPath()
	if err != nil || path != "/tmp/skinchat-token" {
		t.Errorf("TokenPath() = %q, %v", path, err)
	}
}

func TestSave_RoundTripOmitsToken(t *testing.T) {
	dir := isolate(t)
	cfg := Default()
	cfg.Server.BaseURL = "https://saved.example.com"
	cfg.Auth.Token = "secret"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("token was written to disk")
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.BaseURL != "https://saved.example.com" {
		t.Errorf("BaseURL = %q", loaded.Server.BaseURL)
	}
	if loaded.Auth.Token != "" {
		t.Error("token should not be loaded from file")
	}
	if strings.Contains(loaded.String(), "secret") || strings.Contains(cfg.String(), "secret") {
		t.Error("String() exposes the token")
	}
}

func TestDefaultPaths(t *testing.T) {
	dir := isolate(t)
	cfg := Default()

	token, err := cfg.TokenPath()
	if err != nil || token != filepath.Join(dir, "token") {
		t.Errorf("TokenPath() = %q, %v", token, err)
	}
	history, err := cfg.HistoryPath()
	if err != nil || history != filepath.Join(dir, "history") {
		t.Errorf("HistoryPath() = %q, %v", history, err)
	}
}
