// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// watchDebounce coalesces the write/chmod/rename burst of an atomic save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the credential whenever the token file changes, so a login
// or logout in another terminal takes effect in a running session.
// onChange, if non-nil, receives the result of Token after each reload.
// Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself because
// Save replaces the file by rename.
func (s *FileStore) Watch(ctx context.Context, onChange func(token string, ok bool)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrapf(err, "create token directory %s", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}

	target := filepath.Clean(s.path)
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("token watcher error")

		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Warn().Err(err).Str("path", s.path).Msg("token reload failed")
				continue
			}
			token, ok := s.Token()
			s.logger.Debug().Bool("signed_in", ok).Msg("token file changed")
			if onChange != nil {
				onChange(token, ok)
			}
		}
	}
}
