// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ExpiresAt returns the absolute expiry relative to issuedAt, or zero if unknown.
func (t TokenResponse) ExpiresAt(issuedAt time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return issuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// User is the account returned by registration.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Credentials are a username and password.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// Login exchanges credentials for a bearer token. The login endpoint takes
// an OAuth2 password form, not JSON.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(DefaultLoginPath), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok TokenResponse
	if err := c.doJSON(req, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "login response has no access_token"}
	}
	return &tok, nil
}

// Register creates an account. A taken username yields an ErrTypeConflict error.
func (c *Client) Register(ctx context.Context, creds Credentials) (*User, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(DefaultRegisterPath), bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/json")

	var user User
	if err := c.doJSON(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout notifies the backend. Tokens are stateless, so callers must also
// discard their stored copy.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(DefaultLogoutPath), nil)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req, token)
	return c.doJSON(req, nil)
}

// doJSON sends req and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to reach backend", Cause: err}
	}
	defer drainAndClose(resp.Body)

	body, err := readLimited(resp.Body)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug().Str("path", req.URL.Path).Int("status", resp.StatusCode).Msg("request rejected")
		return handleErrorResponse(resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil && err != io.EOF {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to parse response", Cause: err}
	}
	return nil
}
