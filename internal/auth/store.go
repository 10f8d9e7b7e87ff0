// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"sync"
	"time"

	"github.com/jeranaias/skinchat/internal/backend"
)

// TokenStore supplies the bearer token for chat requests.
type TokenStore interface {
	// Token returns the current token and whether one is available.
	// Expired credentials report false.
	Token() (string, bool)
}

// Credential is a stored login.
type Credential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Username    string    `json:"username,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// NewCredential builds a Credential from a login response issued at issuedAt.
func NewCredential(username string, tok *backend.TokenResponse, issuedAt time.Time) Credential {
	return Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Username:    username,
		IssuedAt:    issuedAt,
		ExpiresAt:   tok.ExpiresAt(issuedAt),
	}
}

// Expired reports whether the credential has a known expiry before now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Valid reports whether the credential can be sent.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && !c.Expired(now)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore holds a token in memory, e.g. one taken from SKINCHAT_TOKEN.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store holding token, which may be empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

// Token implements TokenStore.
func (m *MemoryStore) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Set replaces the token. An empty token signs out.
func (m *MemoryStore) Set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}
