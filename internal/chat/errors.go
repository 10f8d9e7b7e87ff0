// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"

	"github.com/jeranaias/skinchat/internal/backend"
	"github.com/jeranaias/skinchat/internal/dispatch"
	"github.com/jeranaias/skinchat/internal/session"
)

// ErrAuthMissing is returned by Send when no credential is available.
// No messages are created.
var ErrAuthMissing = errors.New("not signed in")

// ErrInvalidInput is returned by Send for blank messages.
var ErrInvalidInput = session.ErrInvalidInput

// IsTransportError reports whether err is a connection or stream failure.
func IsTransportError(err error) bool {
	var ce *backend.ClientError
	return errors.As(err, &ce)
}

// IsApplicationError reports whether err was sent by the backend in the stream.
func IsApplicationError(err error) bool {
	return dispatch.IsApplicationError(err)
}

// IsUnauthorized reports whether the backend rejected the credential.
// Callers typically route the user to login.
func IsUnauthorized(err error) bool {
	return backend.IsUnauthorized(err)
}

// diagnostic is the text placed in a failed message's error suffix.
func diagnostic(err error) string {
	var ce *backend.ClientError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	var ae *dispatch.ApplicationError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "Failed to get response"
}
