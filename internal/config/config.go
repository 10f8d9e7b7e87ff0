// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/jeranaias/skinchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete skinchat configuration.
type Config struct {
	Server ServerConfig `toml:"server" json:"server"`
	Auth   AuthConfig   `toml:"auth" json:"auth"`
	Chat   ChatConfig   `toml:"chat" json:"chat"`
	Log    LogConfig    `toml:"log" json:"log"`
	UI     UIConfig     `toml:"ui" json:"ui"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// BaseURL is the backend origin, e.g. "http://localhost:8000".
	BaseURL string `toml:"base_url" json:"base_url"`
	// ChatPath is the streaming chat endpoint relative to BaseURL.
	ChatPath string `toml:"chat_path" json:"chat_path"`
	// TimeoutSecs bounds non-streaming requests (login, register, health).
	// Streaming responses are bounded only by cancellation.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxFrameBytes is the largest accepted SSE event.
	MaxFrameBytes int `toml:"max_frame_bytes" json:"max_frame_bytes"`
}

// AuthConfig controls where the bearer token is kept.
type AuthConfig struct {
	// TokenFile is the token path (empty = ~/.skinchat/token).
	TokenFile string `toml:"token_file" json:"token_file"`
	// Token comes only from SKINCHAT_TOKEN and is never written to disk.
	Token string `toml:"-" json:"-"`
}

// ChatConfig controls the interactive session.
type ChatConfig struct {
	// HistoryFile stores REPL input history (empty = ~/.skinchat/history).
	HistoryFile string `toml:"history_file" json:"history_file"`
	// ShowSources prints product and web sources after each answer.
	ShowSources bool `toml:"show_sources" json:"show_sources"`
	// ShowStats prints turn timing after each answer.
	ShowStats bool `toml:"show_stats" json:"show_stats"`
}

// LogConfig controls diagnostic logging to stderr.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error, disabled.
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json".
	Format string `toml:"format" json:"format"`
}

// UIConfig contains terminal rendering preferences.
type UIConfig struct {
	// Markdown renders completed answers with glamour on a TTY.
	Markdown bool `toml:"markdown" json:"markdown"`
	// Theme is the glamour style: auto, dark, light, notty.
	Theme string `toml:"theme" json:"theme"`
	// RefreshHz caps live redraws while a response streams.
	RefreshHz int `toml:"refresh_hz" json:"refresh_hz"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultChatPath      = "/api/chat"
	DefaultTimeoutSecs   = 30
	DefaultMaxFrameBytes = 1 << 20
	DefaultLogLevel      = "warn"
	DefaultLogFormat     = "console"
	DefaultTheme         = "auto"
	DefaultRefreshHz     = 20
)

// Default returns a configuration with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:       DefaultBaseURL,
			ChatPath:      DefaultChatPath,
			TimeoutSecs:   DefaultTimeoutSecs,
			MaxFrameBytes: DefaultMaxFrameBytes,
		},
		Chat: ChatConfig{
			ShowSources: true,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		UI: UIConfig{
			Markdown:  true,
			Theme:     DefaultTheme,
			RefreshHz: DefaultRefreshHz,
		},
	}
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	if c.Server.ChatPath == "" {
		c.Server.ChatPath = DefaultChatPath
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.Server.MaxFrameBytes == 0 {
		c.Server.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.UI.Theme == "" {
		c.UI.Theme = DefaultTheme
	}
	if c.UI.RefreshHz == 0 {
		c.UI.RefreshHz = DefaultRefreshHz
	}
}

// Timeout returns the request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// TokenPath returns the configured token file or the default location.
func (c *Config) TokenPath() (string, error) {
	if c.Auth.TokenFile != "" {
		return expandHome(c.Auth.TokenFile)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "token"), nil
}

// HistoryPath returns the configured REPL history file or the default location.
func (c *Config) HistoryPath() (string, error) {
	if c.Chat.HistoryFile != "" {
		return expandHome(c.Chat.HistoryFile)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the skinchat configuration directory. SKINCHAT_HOME
// overrides the default ~/.skinchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("SKINCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".skinchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.skinchat/config.toml if it exists, otherwise starts from
// defaults. Environment overrides are applied last, then the result is
// validated.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return LoadFromPath(path)
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes path over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# skinchat configuration file\n")
	buf.WriteString("# Generated by skinchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validThemes = map[string]bool{"auto": true, "dark": true, "light": true, "notty": true}

// Validate checks every field and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Server.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
		})
	}

	if !strings.HasPrefix(c.Server.ChatPath, "/") {
		errs = append(errs, ValidationError{
			Field:   "server.chat_path",
			Message: "must start with '/'",
		})
	}

	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: fmt.Sprintf("must be between 1 and 600, got %d", c.Server.TimeoutSecs),
		})
	}

	if c.Server.MaxFrameBytes < 1024 || c.Server.MaxFrameBytes > 16<<20 {
		errs = append(errs, ValidationError{
			Field:   "server.max_frame_bytes",
			Message: fmt.Sprintf("must be between 1024 and %d, got %d", 16<<20, c.Server.MaxFrameBytes),
		})
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level '%s'", c.Log.Level),
		})
	}

	if f := strings.ToLower(c.Log.Format); f != "console" && f != "json" {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be console or json", c.Log.Format),
		})
	}

	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light, notty", c.UI.Theme),
		})
	}

	if c.UI.RefreshHz < 1 || c.UI.RefreshHz > 60 {
		errs = append(errs, ValidationError{
			Field:   "ui.refresh_hz",
			Message: fmt.Sprintf("must be between 1 and 60, got %d", c.UI.RefreshHz),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - SKINCHAT_BASE_URL: overrides server.base_url
//   - SKINCHAT_TOKEN: bearer token, used instead of the token file
//   - SKINCHAT_TOKEN_FILE: overrides auth.token_file
//   - SKINCHAT_LOG_LEVEL: overrides log.level
//   - SKINCHAT_TIMEOUT: overrides server.timeout_secs
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SKINCHAT_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("SKINCHAT_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("SKINCHAT_TOKEN_FILE"); v != "" {
		c.Auth.TokenFile = v
	}
	if v := os.Getenv("SKINCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SKINCHAT_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Server.TimeoutSecs = secs
		}
	}
}

// =============================================================================
// CLONE / STRING
// =============================================================================

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as indented JSON for `config show`. The
// environment token is never included.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
