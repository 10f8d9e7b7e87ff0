// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default endpoint paths of the consultant API.
const (
	DefaultBaseURL      = "http://localhost:8000"
	DefaultChatPath     = "/api/chat"
	DefaultLoginPath    = "/api/auth/login"
	DefaultRegisterPath = "/api/auth/register"
	DefaultLogoutPath   = "/api/auth/logout"
	DefaultHealthPath   = "/health"

	// MaxResponseSize bounds non-streaming response bodies.
	MaxResponseSize = 1 << 20
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the API base URL (default: http://localhost:8000)
	BaseURL string

	// ChatPath is the streaming chat endpoint (default: /api/chat)
	ChatPath string

	// Timeout for non-streaming requests such as login (default: 30s).
	// Streams have no client timeout; they are bounded by their context.
	Timeout time.Duration

	// MaxFrameSize bounds a single SSE event (default: 1MB)
	MaxFrameSize int

	// UserAgent is sent on every request.
	UserAgent string

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client

	// Logger receives request diagnostics (default: zerolog global logger).
	Logger *zerolog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      DefaultBaseURL,
		ChatPath:     DefaultChatPath,
		Timeout:      30 * time.Second,
		MaxFrameSize: DefaultMaxFrameSize,
		UserAgent:    "skinchat",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the consultant API.
//
// The Client is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	logger       zerolog.Logger
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client. Zero fields take their defaults.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ChatPath == "" {
		cfg.ChatPath = DefaultChatPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "skinchat"
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	c := &Client{
		config: &cfg,
		logger: logger.With().Str("component", "backend").Logger(),
	}

	if cfg.HTTPClient != nil {
		c.httpClient = cfg.HTTPClient
		c.streamClient = cfg.HTTPClient
	} else {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
		// No timeout for streaming - controlled via context
		c.streamClient = &http.Client{}
	}

	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Health verifies that the API is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(DefaultHealthPath), nil)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "backend unreachable", Cause: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := readLimited(resp.Body)
		return handleErrorResponse(resp.StatusCode, body)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) url(path string) string {
	return c.config.BaseURL + path
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// readLimited reads at most MaxResponseSize bytes of a body.
func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// drainAndClose lets the connection be reused.
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, MaxResponseSize))
	r.Close()
}
