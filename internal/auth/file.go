// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/skinchat/internal/util"
)

// FileStore keeps a Credential as JSON in a 0600 file.
type FileStore struct {
	path   string
	now    func() time.Time
	logger zerolog.Logger

	mu     sync.RWMutex
	cred   Credential
	loaded bool
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLogger sets the store's logger.
func WithLogger(logger zerolog.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) FileOption {
	return func(s *FileStore) {
		s.now = now
	}
}

// NewFileStore returns a store backed by path. Nothing is read until first use.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{
		path:   path,
		now:    time.Now,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "auth").Logger()
	return s
}

// Path returns the token file location.
func (s *FileStore) Path() string {
	return s.path
}

// Token implements TokenStore. A missing, unreadable, or expired file
// reports false.
func (s *FileStore) Token() (string, bool) {
	cred, err := s.Credential()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("could not read token file")
		return "", false
	}
	if !cred.Valid(s.now()) {
		return "", false
	}
	return cred.AccessToken, true
}

// Credential returns the stored credential, loading the file on first use.
// A missing file yields a zero Credential and no error.
func (s *FileStore) Credential() (Credential, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.cred, nil
	}
	s.mu.RUnlock()

	if err := s.Reload(); err != nil {
		return Credential{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, nil
}

// Reload re-reads the token file.
func (s *FileStore) Reload() error {
	cred, err := readCredential(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = cred
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Save writes cred atomically with 0600 permissions.
func (s *FileStore) Save(cred Credential) error {
	if cred.AccessToken == "" {
		return errors.New("refusing to save empty access token")
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode credential")
	}
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return errors.Wrapf(err, "write token file %s", s.path)
	}

	s.mu.Lock()
	s.cred = cred
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug().Str("path", s.path).Str("username", cred.Username).Msg("credential saved")
	return nil
}

// Clear removes the token file. Clearing an absent file is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove token file %s", s.path)
	}
	s.mu.Lock()
	s.cred = Credential{}
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func readCredential(path string) (Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, nil
		}
		return Credential{}, errors.Wrapf(err, "read token file %s", path)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, errors.Wrapf(err, "parse token file %s", path)
	}
	return cred, nil
}
