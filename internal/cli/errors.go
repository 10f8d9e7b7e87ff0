// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"

	"github.com/jeranaias/skinchat/internal/backend"
	"github.com/jeranaias/skinchat/internal/chat"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitResponseError = 6
)

// loginHint is shown wherever a missing or rejected credential stops a request.
const loginHint = `run "skinchat login" to sign in`

// =============================================================================
// ERROR TYPES
// =============================================================================

type configError struct {
	err error
}

func (e *configError) Error() string { return "configuration: " + e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// authRequiredError routes the user to the login command.
type authRequiredError struct {
	err error
}

func (e *authRequiredError) Error() string {
	return e.err.Error() + "; " + loginHint
}

func (e *authRequiredError) Unwrap() error { return e.err }

// turnError reports a failed turn from a one-shot command.
type turnError struct {
	err error
}

func (e *turnError) Error() string { return "no answer: " + describe(e.err) }
func (e *turnError) Unwrap() error { return e.err }

// requireAuth wraps credential failures with the login hint.
func requireAuth(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, chat.ErrAuthMissing) || backend.IsUnauthorized(err) {
		return &authRequiredError{err: err}
	}
	return err
}

// describe returns a one-line message for a turn or request failure.
func describe(err error) string {
	var ce *backend.ClientError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return err.Error()
}

// exitCode maps an error to a process exit status.
func exitCode(err error) int {
	var (
		cfgErr  *configError
		authErr *authRequiredError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &authErr), backend.IsUnauthorized(err):
		return ExitAuthError
	case errors.Is(err, chat.ErrInvalidInput):
		return ExitUsageError
	case chat.IsApplicationError(err):
		return ExitResponseError
	case chat.IsTransportError(err):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}
